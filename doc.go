// Package auth implements the identity and credential-lifecycle core of a
// user-account service: purpose-scoped JWT issuance and validation, refresh
// session rotation with single-active-session semantics, and the three
// verification flows (account activation, password reset, email change) that
// share the same token-purpose discipline.
//
// Token purposes:
//   - Tokens carry an optional purpose claim that restricts which single
//     operation they authorize. A token minted for one flow is rejected by
//     every other flow with ErrWrongPurpose, including the bare session token.
//   - Email changes additionally store the last minted token on the account
//     and require exact equality on confirm, so older tokens of the same
//     purpose class are invalidated the moment a newer one is issued.
//
// Refresh sessions:
//   - At most one live refresh session exists per user. Issuing a session
//     deletes any prior one inside the same transaction; refresh calls reuse
//     the stored token and only re-mint the short-lived access token.
//   - Expired sessions are deleted on detection and swept periodically by
//     SessionSweeper.
//
// Persistence goes through RepositoryManager (Bun repositories); email
// dispatch goes through the Mailer collaborator and is fire-and-forget from
// this package's perspective.
package auth
