package accounts

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodePasswordMismatch   = "PASSWORD_MISMATCH"
	TextCodeIdentityTaken      = "IDENTITY_TAKEN"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeOTPExpired         = "OTP_EXPIRED"
	TextCodeOTPMismatch        = "OTP_MISMATCH"
	TextCodeOTPRequired        = "OTP_CODE_REQUIRED"
	TextCodeOTPDelivery        = "OTP_DELIVERY_FAILED"
	TextCodeAlreadyVerified    = "ALREADY_VERIFIED"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeAccountNotVerified = "ACCOUNT_NOT_VERIFIED"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
)

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = goerrors.New("password and confirmation do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch)

// ErrIdentityTaken is returned when a verified account already owns the
// requested email or username.
var ErrIdentityTaken = goerrors.New("identity already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeIdentityTaken)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound)

// ErrOTPExpired means the passcode window elapsed; the pending account is
// deleted and the caller must register again.
var ErrOTPExpired = goerrors.New("one time passcode expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeOTPExpired)

// ErrOTPMismatch means the submitted passcode was wrong. The challenge stays
// outstanding so the caller may retry within the window.
var ErrOTPMismatch = goerrors.New("one time passcode does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeOTPMismatch)

// ErrOTPRequired is returned when the submitted passcode is empty.
var ErrOTPRequired = goerrors.New("one time passcode is required", goerrors.CategoryValidation).
	WithTextCode(TextCodeOTPRequired)

// ErrAlreadyVerified is returned when the account has no outstanding
// challenge; verification is single use.
var ErrAlreadyVerified = goerrors.New("account already verified or challenge consumed", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified)

// ErrInvalidCredentials covers both an unknown username and a failed
// password check so callers cannot enumerate accounts.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrAccountNotVerified is returned when credentials check out but the
// account never completed OTP verification.
var ErrAccountNotVerified = goerrors.New("account email is not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotVerified)

// ErrTooManyLoginAttempts is returned when the login attempt counter
// exceeds MaxLoginAttempts inside the cool down window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrTokenExpired is returned for sessions past their expiry.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is returned when an opaque handle or signed credential
// cannot be decoded.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrSessionNotFound is returned when a well-formed handle resolves to no
// stored credential (revoked or never issued).
var ErrSessionNotFound = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) || hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) || hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// hasTextCode matches on the stable text code so classification survives
// message rewording and sanitized error rendering.
func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == code
}
