package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycleEnv wires the whole stack against in-memory stores: registration,
// verification, login, and session validation all run for real, only the
// persistence is faked.
type lifecycleEnv struct {
	users    *fakeUsers
	register *accounts.RegisterUserHandler
	verify   *accounts.VerifyOTPHandler
	auther   *accounts.Auther

	lastCode string
}

func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()

	env := &lifecycleEnv{users: newFakeUsers()}
	repo := &fakeRepoManager{users: env.users}

	mailer := accounts.MailerFunc(func(ctx context.Context, address, code string) error {
		env.lastCode = code
		return nil
	})

	env.register = accounts.NewRegisterUserHandler(repo, mailer)
	env.verify = accounts.NewVerifyOTPHandler(repo)
	env.auther = accounts.NewAuthenticator(env.users, accounts.NewHandleCodec(newMemHandles()), newMockConfig())

	return env
}

func (env *lifecycleEnv) registerUser(t *testing.T, username, email, password string) *accounts.RegisterUserResponse {
	t.Helper()

	var resp *accounts.RegisterUserResponse
	err := env.register.Execute(context.Background(), accounts.RegisterUserMessage{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
		OnResponse:      func(r *accounts.RegisterUserResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func (env *lifecycleEnv) verifyUser(t *testing.T, reference, code string) error {
	t.Helper()
	return env.verify.Execute(context.Background(), accounts.VerifyOTPMessage{
		Reference: reference,
		Code:      code,
	})
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newLifecycleEnv(t)

	resp := env.registerUser(t, "peperone", "peperone@gmail.com", "Passw0rd!")
	require.NotEmpty(t, env.lastCode)
	code := env.lastCode

	// login before verification is blocked even with the right password
	_, err := env.auther.Login(ctx, "peperone", "Passw0rd!")
	assert.True(t, goerrors.Is(err, accounts.ErrAccountNotVerified))

	// a wrong code leaves the challenge outstanding
	err = env.verifyUser(t, resp.Reference, "000000")
	if code == "000000" {
		t.Skip("generated code collided with the test's wrong code")
	}
	assert.True(t, goerrors.Is(err, accounts.ErrOTPMismatch))

	require.NoError(t, env.verifyUser(t, resp.Reference, code))

	// the challenge is single use
	err = env.verifyUser(t, resp.Reference, code)
	assert.True(t, goerrors.Is(err, accounts.ErrAlreadyVerified))

	// wrong password counts as an attempt and fails closed
	_, err = env.auther.Login(ctx, "peperone", "Wr0ng#Pass")
	assert.True(t, goerrors.Is(err, accounts.ErrInvalidCredentials))

	handle, err := env.auther.Login(ctx, "peperone", "Passw0rd!")
	require.NoError(t, err)

	session, err := env.auther.SessionFromToken(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "peperone", session.GetUsername())
	assert.Equal(t, "peperone@gmail.com", session.GetEmail())
}

func TestAccountLifecycleReRegistration(t *testing.T) {
	env := newLifecycleEnv(t)

	first := env.registerUser(t, "peperone", "peperone@gmail.com", "Passw0rd!")
	firstCode := env.lastCode

	// registering again for the same identity supersedes the pending
	// account and issues a fresh challenge
	second := env.registerUser(t, "peperone", "peperone@gmail.com", "Passw0rd!")
	secondCode := env.lastCode

	// the first reference points at a deleted account now
	err := env.verifyUser(t, first.Reference, firstCode)
	assert.True(t, goerrors.Is(err, accounts.ErrIdentityNotFound))

	if firstCode != secondCode {
		err = env.verifyUser(t, second.Reference, firstCode)
		assert.True(t, goerrors.Is(err, accounts.ErrOTPMismatch))
	}

	require.NoError(t, env.verifyUser(t, second.Reference, secondCode))
}

func TestAccountLifecycleVerifiedBlocksReRegistration(t *testing.T) {
	env := newLifecycleEnv(t)

	resp := env.registerUser(t, "peperone", "peperone@gmail.com", "Passw0rd!")
	require.NoError(t, env.verifyUser(t, resp.Reference, env.lastCode))

	err := env.register.Execute(context.Background(), accounts.RegisterUserMessage{
		Username:        "peperone2",
		Email:           "peperone@gmail.com",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
	})
	assert.True(t, goerrors.Is(err, accounts.ErrIdentityTaken))

	err = env.register.Execute(context.Background(), accounts.RegisterUserMessage{
		Username:        "peperone",
		Email:           "other@gmail.com",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
	})
	assert.True(t, goerrors.Is(err, accounts.ErrIdentityTaken))
}

func TestAccountLifecycleExpiredChallenge(t *testing.T) {
	env := newLifecycleEnv(t)

	// back-date the clock the registration handler uses so the challenge
	// is already expired when verification runs
	repo := &fakeRepoManager{users: env.users}
	registrar := accounts.NewRegisterUserHandler(repo,
		accounts.MailerFunc(func(ctx context.Context, address, code string) error {
			env.lastCode = code
			return nil
		}),
		accounts.WithRegisterClock(func() time.Time { return time.Now().Add(-time.Hour) }),
	)

	var resp *accounts.RegisterUserResponse
	require.NoError(t, registrar.Execute(context.Background(), accounts.RegisterUserMessage{
		Username:        "peperone",
		Email:           "peperone@gmail.com",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
		OnResponse:      func(r *accounts.RegisterUserResponse) { resp = r },
	}))

	err := env.verifyUser(t, resp.Reference, env.lastCode)
	assert.True(t, goerrors.Is(err, accounts.ErrOTPExpired))

	// the expired pending account is gone, so the identity is free again
	fresh := env.registerUser(t, "peperone", "peperone@gmail.com", "Passw0rd!")
	require.NoError(t, env.verifyUser(t, fresh.Reference, env.lastCode))
}
