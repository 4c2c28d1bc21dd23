// Package accounts implements the account lifecycle behind email-verified
// sign ups: registration with password confirmation, one-time-passcode (OTP)
// challenges, credentialed login, and opaque session tokens.
//
// Account lifecycle:
//   - RegisterUserHandler creates an unverified pending account, issues an
//     OTP challenge, and hands the code to a Mailer. An abandoned pending
//     account never blocks a retry: a later registration for the same email
//     or username supersedes it.
//   - VerifyOTPHandler consumes the challenge exactly once. Expired
//     challenges delete the pending account so the identity is freed for a
//     fresh registration.
//
// Sessions:
//   - Auther issues a signed JWT at login and passes it through a TokenCodec
//     so clients only ever hold a UUID-shaped handle. SessionFromToken
//     resolves the handle back to the signed credential and returns the
//     embedded identity.
//   - Session validation trusts the signed credential and does not re-check
//     the account's live state; a deleted account keeps a working session
//     until it expires. Call Auther.Revoke to drop a handle early.
//
// Persistence is provided through RepositoryManager over Bun repositories;
// every collaborator (store, mailer, logger, activity sink) is injected so
// the package carries no process-global state.
package accounts
