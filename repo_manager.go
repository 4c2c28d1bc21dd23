package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	SessionHandles() SessionHandles
}

// SessionHandles persists issued session handles for the token codec.
type SessionHandles interface {
	repository.Repository[*SessionHandle]

	DeleteRecord(ctx context.Context, record *SessionHandle) error
	DeleteRecordTx(ctx context.Context, tx bun.IDB, record *SessionHandle) error
}

type sessionHandles struct {
	repository.Repository[*SessionHandle]
	db *bun.DB
}

var (
	_ SessionHandles = (*sessionHandles)(nil)
	_ HandleStore    = (*sessionHandles)(nil)
)

func NewSessionHandlesRepository(db *bun.DB) SessionHandles {
	handlers := repository.ModelHandlers[*SessionHandle]{
		NewRecord: func() *SessionHandle {
			return &SessionHandle{}
		},
		GetID: func(record *SessionHandle) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *SessionHandle, id uuid.UUID) {
			record.ID = id
		},
	}

	return &sessionHandles{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (s *sessionHandles) DeleteRecord(ctx context.Context, record *SessionHandle) error {
	return s.DeleteRecordTx(ctx, s.db, record)
}

func (s *sessionHandles) DeleteRecordTx(ctx context.Context, tx bun.IDB, record *SessionHandle) error {
	if record == nil {
		return nil
	}

	_, err := tx.NewDelete().
		Model((*SessionHandle)(nil)).
		Where("id = ?", record.ID).
		Exec(ctx)

	return err
}

type mngr struct {
	db             *bun.DB
	users          Users
	sessionHandles SessionHandles
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		sessionHandles: NewSessionHandlesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.sessionHandles == nil {
		return errors.New("repository sessionHandles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) SessionHandles() SessionHandles {
	return m.sessionHandles
}
