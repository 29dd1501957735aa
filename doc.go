// Package flowguard implements the account-security protocol behind web
// account management: stateless signed multi-step flows for registration,
// login, remember-me, password recovery, account unlock, and logout, combined
// with per-account exponential-backoff lockout and a global brute-force
// attack detector.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// flowguard is the public surface. It exposes [Engine], [Builder], [Config],
// collaborator interfaces ([AccountStore], [CaptchaVerifier], [EmailSender],
// [PasswordHasher], [SecretKeyProvider]) and value types. Lockout tracking,
// attack detection, and session encoding live under internal/ and are never
// exported. The token, jwt, and password subpackages are standalone leaves
// with no dependency on flowguard.
//
// # What this package must NOT do
//
//   - Render HTML, verify CAPTCHA challenges itself, or transport email.
//     Those concerns belong to the injected collaborators.
//   - Reveal through any flow result whether an account exists. Flow
//     boundaries return one generic sentinel per flow; the precise cause is
//     available only on the audit trail.
//   - Persist action tokens. Every register/remember/recover/unlock/logout
//     token is self-contained: purpose-scoped, HMAC-signed, time-bounded,
//     and (where it matters) bound to a digest of the current password hash
//     so a password change invalidates it implicitly.
//
// # Performance contract
//
// Login is the hot path. Lockout and attack-window checks are in-process map
// and counter operations; the only I/O on a successful login is the session
// store round-trip. Token issue and verify are pure given the signing key.
package flowguard
