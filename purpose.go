package auth

// TokenPurpose restricts which single operation a signed token authorizes.
// It is a closed enumeration compared with exact equality; the zero value is
// the bare session token used as the short-lived access credential.
type TokenPurpose string

const (
	// PurposeSession is the bare access token, no purpose claim.
	PurposeSession TokenPurpose = ""
	// PurposeEmailVerification gates account activation.
	PurposeEmailVerification TokenPurpose = "email_verification"
	// PurposePasswordReset gates password reset confirmation.
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeEmailUpdateVerification gates email change confirmation.
	PurposeEmailUpdateVerification TokenPurpose = "email_update_verification"
)

// Valid reports whether p is one of the four known purposes.
func (p TokenPurpose) Valid() bool {
	switch p {
	case PurposeSession, PurposeEmailVerification, PurposePasswordReset, PurposeEmailUpdateVerification:
		return true
	}
	return false
}

func (p TokenPurpose) String() string {
	if p == PurposeSession {
		return "session"
	}
	return string(p)
}

// RequirePurpose rejects claims whose purpose does not exactly match expected.
// A bare session token presented where a specific purpose is required fails,
// and so does the reverse. This check is mandatory before any state mutation
// in the verification flows; it is the single mechanism preventing a token
// minted for one use from being replayed for another.
func RequirePurpose(claims AuthClaims, expected TokenPurpose) error {
	if claims == nil {
		return ErrTokenMalformed
	}
	if claims.Purpose() != expected {
		return ErrWrongPurpose
	}
	return nil
}
