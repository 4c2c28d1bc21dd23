package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type VerifyOTPMessage struct {
	Reference  string `json:"reference"`
	Code       string `json:"code"`
	OnResponse func(*VerifyOTPResponse)
}

func (e VerifyOTPMessage) Type() string { return "user.verify_otp" }

// Validate will run validation rules. The code is allowed to be empty here:
// the handler reports the missing code only after resolving the account, so
// an expired challenge still surfaces as expired.
func (e VerifyOTPMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Reference,
			validation.Required,
		),
		validation.Field(
			&e.Code,
			is.Digit,
		),
	)
}

type VerifyOTPResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

type VerifyOTPHandler struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// VerifyOTPOption customizes a VerifyOTPHandler.
type VerifyOTPOption func(*VerifyOTPHandler)

// WithVerifyLogger overrides the handler's logger.
func WithVerifyLogger(logger Logger) VerifyOTPOption {
	return func(h *VerifyOTPHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithVerifyActivitySink configures the sink receiving verification events.
func WithVerifyActivitySink(sink ActivitySink) VerifyOTPOption {
	return func(h *VerifyOTPHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithVerifyClock injects a custom clock (useful for tests).
func WithVerifyClock(clock func() time.Time) VerifyOTPOption {
	return func(h *VerifyOTPHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewVerifyOTPHandler(repo RepositoryManager, opts ...VerifyOTPOption) *VerifyOTPHandler {
	handler := &VerifyOTPHandler{
		repo:         repo,
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

func (h *VerifyOTPHandler) Execute(ctx context.Context, event VerifyOTPMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyOTPHandler) execute(ctx context.Context, event VerifyOTPMessage) error {
	if err := event.Validate(); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	id, err := uuid.Parse(event.Reference)
	if err != nil {
		// a stale or garbled reference is indistinguishable from a deleted
		// pending account as far as the caller is concerned
		return ErrIdentityNotFound
	}

	resp := &VerifyOTPResponse{}
	expired := false

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByReferenceTx(ctx, tx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification")
		}

		if user.OTPCode == nil {
			return ErrAlreadyVerified
		}

		if user.ChallengeExpired(h.now()) {
			// dangling pending registrations are not retained; the delete has
			// to commit, so it is flagged instead of returned as an error
			if err := h.repo.Users().DeleteAccountTx(ctx, tx, user.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired registration")
			}
			expired = true
			return nil
		}

		if event.Code == "" {
			return ErrOTPRequired
		}

		if event.Code != *user.OTPCode {
			return ErrOTPMismatch
		}

		verified, err := h.repo.Users().ConsumeOTPTx(ctx, tx, user.ID, event.Code)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// lost the race against a concurrent submission
				return ErrAlreadyVerified
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume passcode")
		}

		resp.Username = verified.Username
		resp.Email = verified.Email
		resp.Verified = verified.Verified

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account verification")
	}

	if expired {
		h.logger.Info("deleted expired pending registration", "user_id", id.String())
		return ErrOTPExpired
	}

	h.emit(ctx, ActivityEventUserVerified, id.String(), map[string]any{
		"email": resp.Email,
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *VerifyOTPHandler) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
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
