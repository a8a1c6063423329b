package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/files"
	"github.com/harrylevesque/qrpay/internal/models"
)

type fakeAuth struct {
	res   models.AuthResult
	err   error
	calls int
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (models.AuthResult, error) {
	f.calls++
	return f.res, f.err
}

func (f *fakeAuth) Register(_ context.Context, _, _, _, _ string) (models.AuthResult, error) {
	f.calls++
	return f.res, f.err
}

var (
	now     = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock   = WithClock(func() time.Time { return now })
	success = models.AuthResult{
		Token:     "tok",
		User:      models.User{ID: "u1", Name: "Asha", UpiID: "asha@upi", Balance: 500},
		ExpiresIn: 3600,
	}
)

func TestLogin_StoresCredentialAndFlipsState(t *testing.T) {
	store := files.NewMemoryStore()
	s := NewSession(&fakeAuth{res: success}, store, clock)
	var seen []State
	s.Subscribe(func(st State) { seen = append(seen, st) })

	require.NoError(t, s.Login(context.Background(), " 9999999999 ", "1234"))

	cred, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, models.NewCredential(success, now), cred)
	assert.Equal(t, now.Add(time.Hour), cred.ExpiresAt)

	user, ok := s.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, success.User, user)
	assert.Equal(t, []State{{Authenticated: true, User: success.User}}, seen)
}

func TestLogin_AnyFailureIsGeneric(t *testing.T) {
	for name, cause := range map[string]error{
		"wrong pin": &api.Error{Kind: api.ServerRejected, StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"},
		"network":   &api.Error{Kind: api.TransportFailure, Err: errors.New("dial tcp: refused")},
		"garbled":   &api.Error{Kind: api.MalformedResponse},
	} {
		t.Run(name, func(t *testing.T) {
			store := files.NewMemoryStore()
			s := NewSession(&fakeAuth{err: cause}, store, clock)

			err := s.Login(context.Background(), "9999999999", "1234")
			assert.Equal(t, ErrLoginFailed, err)
			assert.False(t, s.IsAuthenticated())
			_, ok := store.Get()
			assert.False(t, ok)
		})
	}
}

func TestLogin_BlankFieldsMakeNoCall(t *testing.T) {
	fa := &fakeAuth{res: success}
	s := NewSession(fa, files.NewMemoryStore(), clock)

	assert.ErrorIs(t, s.Login(context.Background(), "  ", "1234"), ErrMissingFields)
	assert.ErrorIs(t, s.Login(context.Background(), "9999999999", " "), api.InvalidRequest)
	assert.Zero(t, fa.calls)
}

func TestLogout_ClearsLocally(t *testing.T) {
	store := files.NewMemoryStore()
	fa := &fakeAuth{res: success}
	s := NewSession(fa, store, clock)
	require.NoError(t, s.Login(context.Background(), "1", "2"))

	s.Logout()
	assert.Equal(t, State{}, s.State())
	_, ok := store.Get()
	assert.False(t, ok)
	assert.Equal(t, 1, fa.calls)
}

func TestBootstrap(t *testing.T) {
	store := files.NewMemoryStore()
	store.Set(models.NewCredential(success, now.Add(-30*time.Minute)))
	s := NewSession(&fakeAuth{}, store, clock)
	assert.True(t, s.IsAuthenticated())

	expired := files.NewMemoryStore()
	expired.Set(models.NewCredential(success, now.Add(-2*time.Hour)))
	s = NewSession(&fakeAuth{}, expired, clock)
	assert.False(t, s.IsAuthenticated())
	_, ok := expired.Get()
	assert.False(t, ok)
}

func TestState_ExpiresWhileRunning(t *testing.T) {
	current := now
	store := files.NewMemoryStore()
	s := NewSession(&fakeAuth{res: success}, store, WithClock(func() time.Time { return current }))
	require.NoError(t, s.Login(context.Background(), "1", "2"))

	current = now.Add(2 * time.Hour)
	assert.False(t, s.IsAuthenticated())
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	store := files.NewMemoryStore()
	s := NewSession(&fakeAuth{res: success}, store, clock)
	require.NoError(t, s.Register(context.Background(), "9999999999", "asha@upi", "Asha", "1234"))
	assert.True(t, s.IsAuthenticated())

	cause := &api.Error{Kind: api.ServerRejected, StatusCode: http.StatusBadRequest, Message: "Phone number already registered"}
	s = NewSession(&fakeAuth{err: cause}, files.NewMemoryStore(), clock)
	err := s.Register(context.Background(), "9999999999", "asha@upi", "Asha", "1234")
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.ErrorIs(t, err, api.ServerRejected)

	assert.ErrorIs(t, s.Register(context.Background(), "1", "", "Asha", "1"), ErrMissingFields)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := NewSession(&fakeAuth{res: success}, files.NewMemoryStore(), clock)
	calls := 0
	unsubscribe := s.Subscribe(func(State) { calls++ })
	unsubscribe()
	require.NoError(t, s.Login(context.Background(), "1", "2"))
	assert.Zero(t, calls)
}

func TestPINHashing(t *testing.T) {
	hash, err := HashPIN("1234")
	require.NoError(t, err)
	assert.NotEqual(t, "1234", hash)
	assert.True(t, CheckPIN("1234", hash))
	assert.False(t, CheckPIN("4321", hash))
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
		"Bearer  abc": "abc",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, BearerToken(r), "header %q", header)
	}
}

func TestSubscribe_MayReadState(t *testing.T) {
	s := NewSession(&fakeAuth{res: success}, files.NewMemoryStore(), clock)
	var seen []bool
	s.Subscribe(func(State) { seen = append(seen, s.IsAuthenticated()) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Login(context.Background(), "9999999999", "1234")
		s.Logout()
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session blocked while a subscriber read it")
	}
	assert.Equal(t, []bool{true, false}, seen)
}
