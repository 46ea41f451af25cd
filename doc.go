// Package account implements the account mutation surface (registration,
// verification, login, password lifecycle, secondary emails, archival,
// blocking) on top of Bun repositories and JWT primitives.
//
// Account status:
//   - Every User owns an AccountStatus row carrying the verified, archived,
//     and blocked flags plus an optional secondary email slot. StatusMachine
//     centralizes the flag transitions and their side effects (refresh token
//     revocation, verify-on-reset) so every mutation shares one set of
//     invariants.
//
// Scoped tokens:
//   - ScopedTokenCodec issues and verifies single purpose signed tokens
//     (activation, password reset, password set, secondary email). A token is
//     only valid for the scope it was issued under and for the per-scope max
//     age enforced at verification time.
//
// Mutations:
//   - Each user-facing operation is a handler with an Execute method that
//     validates input, applies the status transitions, and maps domain
//     failures into a uniform Output (success flag plus field-keyed errors).
//     Only programmer misuse (ErrWrongUsage) escapes as a Go error.
package account
