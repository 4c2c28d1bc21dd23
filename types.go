package accounts

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUsername() string
	GetEmail() string
	GetIssuer() string
	GetAudience() []string
	GetIssuedAt() *time.Time
	GetExpiration() *time.Time
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	SessionFromToken(ctx context.Context, token string) (Session, error)
	Revoke(ctx context.Context, token string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
}

// TokenService issues and validates signed session credentials.
type TokenService interface {
	Generate(identity Identity) (string, time.Time, error)
	SignClaims(claims *SessionClaims) (string, error)
	Validate(tokenString string) (*SessionClaims, error)
}

// TokenCodec converts a signed credential into an opaque, UUID shaped
// handle and back. Resolve(Issue(x)) == x for every issued credential.
type TokenCodec interface {
	Issue(ctx context.Context, token string, expiresAt time.Time) (string, error)
	Resolve(ctx context.Context, handle string) (string, error)
	Revoke(ctx context.Context, handle string) error
}

// Mailer delivers a passcode to an address. Implementations own their
// transport; the caller only sees success or failure.
type Mailer interface {
	Send(ctx context.Context, address, code string) error
}

// MailerFunc adapts a function into a Mailer.
type MailerFunc func(ctx context.Context, address, code string) error

// Send satisfies the Mailer interface.
func (f MailerFunc) Send(ctx context.Context, address, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, address, code)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// UserTracker is a store we can use to retrieve users during login
type UserTracker interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
