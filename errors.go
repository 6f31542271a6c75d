package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed     = "token_malformed"
	TextCodeTokenExpired       = "token_expired"
	TextCodeWrongPurpose       = "token_wrong_purpose"
	TextCodeInvalidToken       = "invalid_verification_token"
	TextCodeEmailTaken         = "email_taken"
	TextCodeAlreadyActivated   = "account_already_activated"
	TextCodePasswordMismatch   = "password_mismatch"
	TextCodeIdentityNotFound   = "identity_not_found"
	TextCodeRefreshNotFound    = "refresh_session_not_found"
	TextCodeRefreshExpired     = "refresh_session_expired"
	TextCodeInvalidCredentials = "invalid_credentials"
)

// ErrTokenMalformed covers unparsable or tampered tokens. Parse details are
// never exposed to callers, only the authentication failure.
var ErrTokenMalformed = goerrors.New("invalid authentication token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a signed token is past its deadline.
var ErrTokenExpired = goerrors.New("authentication token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrWrongPurpose is returned when a valid token is presented to an operation
// it was not minted for.
var ErrWrongPurpose = goerrors.New("token purpose does not authorize this operation", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongPurpose).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidVerificationToken is returned by the email change confirmation
// when the presented token does not match the one stored on the account.
var ErrInvalidVerificationToken = goerrors.New("invalid verification token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailTaken is returned when registering or staging an email change with
// an address that already belongs to an account.
var ErrEmailTaken = goerrors.New("email already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyActivated signals activation token replay against an account that
// is already active.
var ErrAlreadyActivated = goerrors.New("account is already activated", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyActivated).
	WithCode(goerrors.CodeConflict)

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is returned when a token subject or login identifier
// resolves to no account. Never surfaced by password reset requests.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRefreshNotFound is returned when a refresh token has no stored session.
var ErrRefreshNotFound = goerrors.New("refresh token is not recognized", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshExpired is returned when a refresh session is past its expiry.
// The session row is deleted as a side effect of detection.
var ErrRefreshExpired = goerrors.New("refresh session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the credential comparison failure.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty secrets before they reach the hasher.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// isUniqueViolation detects unique-index failures across the dialects we run
// against (postgres and sqlite).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
