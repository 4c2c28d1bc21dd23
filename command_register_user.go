package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(*RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Username,
			validation.Required,
			is.Alphanumeric,
			validation.Length(3, 30),
		),
		validation.Field(
			&e.Email,
			validation.Required,
			is.Email,
			validation.By(ValidateEmailDomain),
		),
		validation.Field(
			&e.Password,
			validation.Required,
			validation.By(ValidatePasswordStrength),
		),
		validation.Field(
			&e.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(e.Password)),
		),
	)
}

// RegisterUserResponse carries the opaque reference the client submits back
// during OTP verification in place of the raw email address.
type RegisterUserResponse struct {
	Reference string    `json:"reference"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RegisterUserHandler struct {
	repo         RepositoryManager
	mailer       Mailer
	policy       OTPPolicy
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// RegisterUserOption customizes a RegisterUserHandler.
type RegisterUserOption func(*RegisterUserHandler)

// WithRegisterOTPPolicy overrides the default passcode policy.
func WithRegisterOTPPolicy(policy OTPPolicy) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.policy = policy
	}
}

// WithRegisterLogger overrides the handler's logger.
func WithRegisterLogger(logger Logger) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRegisterActivitySink configures the sink receiving registration events.
func WithRegisterActivitySink(sink ActivitySink) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithRegisterClock injects a custom clock (useful for tests).
func WithRegisterClock(clock func() time.Time) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewRegisterUserHandler(repo RepositoryManager, mailer Mailer, opts ...RegisterUserOption) *RegisterUserHandler {
	handler := &RegisterUserHandler{
		repo:         repo,
		mailer:       mailer,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	resp := &RegisterUserResponse{Email: event.Email}
	var code string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.supersede(ctx, tx, event); err != nil {
			return err
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		generated, issuedAt, expiresAt, err := h.policy.Challenge(h.now())
		if err != nil {
			return err
		}
		code = generated

		user := &User{
			Username:     event.Username,
			Email:        event.Email,
			PasswordHash: hash,
			OTPCode:      &generated,
			OTPIssuedAt:  &issuedAt,
			OTPExpiresAt: &expiresAt,
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		resp.Reference = user.ID.String()
		resp.ExpiresAt = expiresAt

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.emit(ctx, ActivityEventUserRegistered, resp.Reference, map[string]any{
		"email": event.Email,
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	// The account is durable at this point: a failed delivery is reported
	// but never rolls the registration back. The next registration attempt
	// for the same identity supersedes the pending record and gets a fresh
	// code, which heals a lost email.
	if err := h.mailer.Send(ctx, event.Email, code); err != nil {
		h.logger.Error("passcode delivery failed", "email", event.Email, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver one time passcode").
			WithTextCode(TextCodeOTPDelivery)
	}

	return nil
}

// supersede clears abandoned pending registrations on both uniqueness axes.
// A verified holder of either identity is a hard conflict.
func (h *RegisterUserHandler) supersede(ctx context.Context, tx bun.Tx, event RegisterUserMessage) error {
	seen := map[string]bool{}

	for _, lookup := range []struct {
		axis string
		find func() (*User, error)
	}{
		{"email", func() (*User, error) { return h.repo.Users().GetByEmailTx(ctx, tx, event.Email) }},
		{"username", func() (*User, error) { return h.repo.Users().GetByUsernameTx(ctx, tx, event.Username) }},
	} {
		existing, err := lookup.find()
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				continue
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing "+lookup.axis)
		}

		if existing.Verified {
			return ErrIdentityTaken
		}

		if seen[existing.ID.String()] {
			continue
		}
		seen[existing.ID.String()] = true

		if err := h.repo.Users().DeleteAccountTx(ctx, tx, existing.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede pending "+lookup.axis)
		}

		h.logger.Info("superseded pending registration", "axis", lookup.axis, "user_id", existing.ID.String())
	}

	return nil
}

func (h *RegisterUserHandler) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(h.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{Type: "user"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: h.now(),
	}

	if err := sink.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}
}
