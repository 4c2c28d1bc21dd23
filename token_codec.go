package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// HandleStore is the slice of the session handle repository the codec needs.
type HandleStore interface {
	Create(ctx context.Context, record *SessionHandle, criteria ...repository.InsertCriteria) (*SessionHandle, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*SessionHandle, error)
	DeleteRecord(ctx context.Context, record *SessionHandle) error
}

type handleCodec struct {
	handles HandleStore
	logger  Logger
	now     func() time.Time
}

// HandleCodecOption customizes a handle codec.
type HandleCodecOption func(*handleCodec)

// WithHandleCodecClock injects a custom clock (useful for tests).
func WithHandleCodecClock(clock func() time.Time) HandleCodecOption {
	return func(c *handleCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithHandleCodecLogger overrides the codec logger.
func WithHandleCodecLogger(logger Logger) HandleCodecOption {
	return func(c *handleCodec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHandleCodec returns a TokenCodec that stores each signed credential
// keyed by a random UUID handle. A signed credential is too long to embed
// reversibly in a fixed 128 bit token, so the codec trades pure
// statelessness for a store lookup; in exchange, Revoke can invalidate a
// session before its credential expires.
func NewHandleCodec(handles HandleStore, opts ...HandleCodecOption) TokenCodec {
	codec := &handleCodec{
		handles: handles,
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(codec)
		}
	}

	return codec
}

func (c *handleCodec) Issue(ctx context.Context, token string, expiresAt time.Time) (string, error) {
	if token == "" {
		return "", goerrors.New("token must not be empty", goerrors.CategoryBadInput)
	}

	record := &SessionHandle{
		ID:        uuid.New(),
		Token:     token,
		ExpiresAt: &expiresAt,
	}

	created, err := c.handles.Create(ctx, record)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store session handle")
	}

	return created.ID.String(), nil
}

func (c *handleCodec) Resolve(ctx context.Context, handle string) (string, error) {
	id, err := uuid.Parse(handle)
	if err != nil {
		return "", ErrTokenMalformed
	}

	record, err := c.handles.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return "", ErrSessionNotFound
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve session handle")
	}

	if record.ExpiresAt != nil && c.now().After(*record.ExpiresAt) {
		// best effort cleanup, the credential check would reject it anyway
		if err := c.handles.DeleteRecord(ctx, record); err != nil {
			c.logger.Warn("failed to delete expired session handle", "error", err)
		}
		return "", ErrTokenExpired
	}

	return record.Token, nil
}

func (c *handleCodec) Revoke(ctx context.Context, handle string) error {
	id, err := uuid.Parse(handle)
	if err != nil {
		return ErrTokenMalformed
	}

	record, err := c.handles.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve session handle")
	}

	if err := c.handles.DeleteRecord(ctx, record); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session handle")
	}

	return nil
}
