package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Auther issues opaque session tokens at login and resolves them back to
// the embedded identity on every authenticated request.
type Auther struct {
	users          UserTracker
	codec          TokenCodec
	tokenService   TokenService
	tokenValidator TokenValidator
	logger         Logger
	activitySink   ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(users UserTracker, codec TokenCodec, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		users:        users,
		codec:        codec,
		tokenService: tokenService,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenService sets a custom token service, replacing the one built
// from the Config.
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
	}
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the username/password pair against the store and, on
// success, issues a signed credential and exchanges it for an opaque
// handle. An unknown username and a failed password check both surface as
// ErrInvalidCredentials so callers cannot enumerate accounts; the log lines
// stay distinct.
func (s *Auther) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			s.logger.Error("Login unknown username", "username", username)
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"username": username,
				"error":    ErrIdentityNotFound.Error(),
			})
			return "", ErrInvalidCredentials
		}

		s.logger.Error("Login user lookup error", "error", err)
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during login")
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return "", ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// We have to increment the login_attempts counter and login_attempt_at
		if err2 := s.users.TrackAttemptedLogin(ctx, user); err2 != nil {
			return "", goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}

		s.logger.Error("Login password mismatch", "username", username)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.ID.String(), map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return "", ErrInvalidCredentials
	}

	if !user.Verified {
		s.logger.Warn("Login blocked for unverified account", "username", username)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.ID.String(), map[string]any{
			"username": username,
			"error":    ErrAccountNotVerified.Error(),
		})
		return "", ErrAccountNotVerified
	}

	// reset the login_attempts counter and login_attempt_at
	if err := s.users.TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	signed, expiresAt, err := s.tokenService.Generate(user.Identity())
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.ID.String(), map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return "", err
	}

	handle, err := s.codec.Issue(ctx, signed, expiresAt)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromUser(user), user.ID.String(), map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromUser(user), user.ID.String(), map[string]any{
		"username": username,
	})

	return handle, nil
}

// SessionFromToken resolves an opaque handle back to its signed credential,
// validates the signature and expiry, and returns the identity payload.
// The account's live state is NOT re-checked: a deleted or superseded
// account keeps a working session until the credential expires. Use Revoke
// for immediate invalidation.
func (s *Auther) SessionFromToken(ctx context.Context, raw string) (Session, error) {
	signed, err := s.codec.Resolve(ctx, raw)
	if err != nil {
		s.logger.Error("SessionFromToken handle resolution failed", "error", err)
		return nil, err
	}

	validator := s.tokenValidator
	if validator == nil {
		validator = TokenValidatorFunc(s.tokenService.Validate)
	}

	claims, err := validator.Validate(signed)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	session, err := sessionFromClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims", "error", err)
		return nil, err
	}

	return session, nil
}

// Revoke drops the stored handle so the opaque token stops resolving
// immediately, regardless of the signed credential's remaining lifetime.
func (s *Auther) Revoke(ctx context.Context, raw string) error {
	if err := s.codec.Revoke(ctx, raw); err != nil {
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventSessionRevoked, ActorRef{Type: "user"}, "", nil)
	return nil
}

var _ Authenticator = (*Auther)(nil)

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   user.ID.String(),
		Type: "user",
	}
}
