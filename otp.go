package accounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultOTPDigits is the passcode length used when a policy does not set one.
var DefaultOTPDigits = 6

// DefaultOTPWindow is the challenge validity window used when a policy does
// not set one. Matches the 10 minute window of the original sign up flow.
var DefaultOTPWindow = 10 * time.Minute

// OTPPolicy generates and expires one time passcodes. It is pure: it owns no
// persistence and every method is safe for concurrent use.
//
// Codes are sampled uniformly from the full 10^Digits space with crypto/rand,
// so they are not guessable from timing or previous codes. They are not
// globally unique; correctness relies on each code being scoped to a single
// pending account.
type OTPPolicy struct {
	Digits int
	Window time.Duration
}

// Generate returns a zero padded numeric passcode.
func (p OTPPolicy) Generate() (string, error) {
	digits := p.digits()

	space := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one time passcode")
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}

// Challenge generates a passcode together with its validity window anchored
// at now.
func (p OTPPolicy) Challenge(now time.Time) (code string, issuedAt, expiresAt time.Time, err error) {
	code, err = p.Generate()
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}

	return code, now, now.Add(p.window()), nil
}

// Expired reports whether a challenge expiring at expiresAt has elapsed at now.
func (p OTPPolicy) Expired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}

func (p OTPPolicy) digits() int {
	if p.Digits > 0 {
		return p.Digits
	}
	return DefaultOTPDigits
}

func (p OTPPolicy) window() time.Duration {
	if p.Window > 0 {
		return p.Window
	}
	return DefaultOTPWindow
}
