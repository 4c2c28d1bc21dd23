package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. An account starts unverified with an
// outstanding OTP challenge; the challenge fields are non-null exactly
// while the account is pending.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"password_hash,omitempty"`
	Verified       bool       `bun:"is_verified" json:"is_verified,omitempty"`
	OTPCode        *string    `bun:"otp_code,nullzero" json:"-"`
	OTPIssuedAt    *time.Time `bun:"otp_issued_at,nullzero" json:"otp_issued_at,omitempty"`
	OTPExpiresAt   *time.Time `bun:"otp_expires_at,nullzero" json:"otp_expires_at,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Pending reports whether the account has an outstanding OTP challenge.
func (u *User) Pending() bool {
	return u != nil && !u.Verified && u.OTPCode != nil
}

// ChallengeExpired reports whether the outstanding challenge elapsed at now.
// Accounts without a challenge never expire through this path.
func (u *User) ChallengeExpired(now time.Time) bool {
	if u == nil || u.OTPExpiresAt == nil {
		return false
	}
	return now.After(*u.OTPExpiresAt)
}

// Identity returns the account's identity view for token issuance.
func (u *User) Identity() Identity {
	return authIdentity{
		id:       u.ID.String(),
		username: u.Username,
		email:    u.Email,
	}
}

// NewIdentity builds an Identity from raw values, for callers minting tokens
// outside the login flow.
func NewIdentity(id, username, email string) Identity {
	return authIdentity{
		id:       id,
		username: username,
		email:    email,
	}
}

type authIdentity struct {
	id       string
	username string
	email    string
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) Username() string {
	return a.username
}

func (a authIdentity) Email() string {
	return a.email
}

var _ Identity = authIdentity{}

// SessionHandle stores an issued signed credential keyed by the opaque
// handle handed to the client. A signed JWT does not fit inside a 128 bit
// identifier, so the codec keeps this indirection instead of attempting a
// reversible packing.
type SessionHandle struct {
	bun.BaseModel `bun:"table:session_handles,alias:sh"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull" json:"-"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
