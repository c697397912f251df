// Package auth implements the account settings workflow of a small
// authentication service: a signed-in user updates their email, password or
// two-factor flag and the change is applied against the persisted account.
//
// Settings workflow:
//   - UpdateSettingsHandler resolves the caller through a SessionDirectory,
//     drops credential fields for accounts managed by an external identity
//     provider, and then either starts an email verification (new email) or
//     persists the remaining changes and refreshes the session.
//   - Business failures (Unauthorized, EmailInUse, InvalidCredential) are
//     returned as an Outcome. Collaborator failures are returned as errors.
//
// Email verification:
//   - VerificationTokens issues a single active token per email address.
//     ConfirmEmailHandler consumes it and writes the new email to the account.
//
// Transport:
//   - SessionMiddleware and SettingsController expose the workflow over fiber
//     using a signed session cookie managed by TokenService.
package auth
