package accounts_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUsers implements the slice of accounts.Users the lifecycle handlers
// touch. The embedded interface satisfies the rest; calling an unmocked
// method panics, which is what we want in tests.
type MockUsers struct {
	mock.Mock
	accounts.Users
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

func (m *MockUsers) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*accounts.User, error) {
	args := m.Called(ctx, tx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

func (m *MockUsers) GetByReferenceTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

// CreateTx echoes the record back with a fresh ID when the expectation
// returns (nil, nil), mirroring what the real repository does.
func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	args := m.Called(ctx, tx, record)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	if args.Get(0) == nil {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		return record, nil
	}
	return args.Get(0).(*accounts.User), nil
}

func (m *MockUsers) DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) ConsumeOTPTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) (*accounts.User, error) {
	args := m.Called(ctx, tx, id, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

// MockUserTracker backs Auther in login tests.
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.User), args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockMailer captures passcode deliveries.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, address, code string) error {
	args := m.Called(ctx, address, code)
	return args.Error(0)
}

// fakeRepoManager satisfies accounts.RepositoryManager without a database;
// RunInTx simply invokes the function with a zero transaction since every
// store call is mocked anyway.
type fakeRepoManager struct {
	users   accounts.Users
	handles accounts.SessionHandles
}

func (f *fakeRepoManager) Users() accounts.Users { return f.users }

func (f *fakeRepoManager) SessionHandles() accounts.SessionHandles { return f.handles }

func (f *fakeRepoManager) Validate() error { return nil }

func (f *fakeRepoManager) MustValidate() {}

func (f *fakeRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

// memHandles is an in-memory HandleStore used by codec and login tests.
type memHandles struct {
	mu      sync.Mutex
	records map[string]*accounts.SessionHandle
}

func newMemHandles() *memHandles {
	return &memHandles{records: map[string]*accounts.SessionHandle{}}
}

func (s *memHandles) Create(ctx context.Context, record *accounts.SessionHandle, criteria ...repository.InsertCriteria) (*accounts.SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.ID.String()] = &clone
	return &clone, nil
}

func (s *memHandles) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	clone := *record
	return &clone, nil
}

func (s *memHandles) DeleteRecord(ctx context.Context, record *accounts.SessionHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, record.ID.String())
	return nil
}

// capturingSink collects activity events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt accounts.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(t accounts.ActivityEventType) []accounts.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []accounts.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == t {
			out = append(out, evt)
		}
	}
	return out
}

// mockConfig implements accounts.Config.
type mockConfig struct {
	signingKey      string
	tokenExpiration int
	issuer          string
	audience        []string
}

func newMockConfig() mockConfig {
	return mockConfig{
		signingKey:      "test-signing-key",
		tokenExpiration: 1,
		issuer:          "test-issuer",
		audience:        []string{"app:test"},
	}
}

func (c mockConfig) GetSigningKey() string   { return c.signingKey }
func (c mockConfig) GetTokenExpiration() int { return c.tokenExpiration }
func (c mockConfig) GetIssuer() string       { return c.issuer }
func (c mockConfig) GetAudience() []string   { return c.audience }

// fakeUsers is a stateful in-memory Users store for end to end flow tests.
type fakeUsers struct {
	accounts.Users
	mu   sync.Mutex
	byID map[string]*accounts.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*accounts.User{}}
}

func (s *fakeUsers) find(match func(*accounts.User) bool) *accounts.User {
	for _, u := range s.byID {
		if match(u) {
			return u
		}
	}
	return nil
}

func (s *fakeUsers) get(match func(*accounts.User) bool) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.find(match); u != nil {
		clone := *u
		return &clone, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (s *fakeUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.get(func(u *accounts.User) bool { return u.Email == email })
}

func (s *fakeUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	return s.GetByEmail(ctx, email)
}

func (s *fakeUsers) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	return s.get(func(u *accounts.User) bool { return u.Username == username })
}

func (s *fakeUsers) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*accounts.User, error) {
	return s.GetByUsername(ctx, username)
}

func (s *fakeUsers) GetByReferenceTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*accounts.User, error) {
	return s.get(func(u *accounts.User) bool { return u.ID == id })
}

func (s *fakeUsers) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.find(func(u *accounts.User) bool {
		return u.Email == record.Email || strings.EqualFold(u.Username, record.Username)
	}); u != nil {
		return nil, fmt.Errorf("uniqueness violation: %s/%s", record.Email, record.Username)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	clone := *record
	s.byID[record.ID.String()] = &clone
	return record, nil
}

func (s *fakeUsers) DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id.String())
	return nil
}

func (s *fakeUsers) ConsumeOTPTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id.String()]
	if !ok || u.Verified || u.OTPCode == nil || *u.OTPCode != code {
		return nil, repository.NewRecordNotFound()
	}

	u.Verified = true
	u.OTPCode = nil
	u.OTPIssuedAt = nil
	u.OTPExpiresAt = nil

	clone := *u
	return &clone, nil
}

func (s *fakeUsers) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[user.ID.String()]; ok {
		u.LoginAttempts = user.LoginAttempts + 1
		now := time.Now()
		u.LoginAttemptAt = &now
	}
	return nil
}

func (s *fakeUsers) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[user.ID.String()]; ok {
		u.LoginAttempts = 0
		u.LoginAttemptAt = nil
		now := time.Now()
		u.LoggedInAt = &now
	}
	return nil
}
