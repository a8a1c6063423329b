// Package auth owns the application's authentication state: who is signed in
// and the credential that proves it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/files"
	"github.com/harrylevesque/qrpay/internal/models"
)

var (
	// ErrMissingFields is returned before any call when a required field is blank.
	ErrMissingFields = fmt.Errorf("%w: phone number and PIN are required", api.InvalidRequest)
	// ErrLoginFailed is the only error Login reports for a rejected or failed
	// attempt. Wrong credentials and network trouble look the same.
	ErrLoginFailed = errors.New("login failed")
	// ErrRegistrationFailed wraps the cause of a failed registration.
	ErrRegistrationFailed = errors.New("registration failed")
)

// Authenticator is the part of api.Client used to sign in.
type Authenticator interface {
	Login(ctx context.Context, phoneNumber, pin string) (models.AuthResult, error)
	Register(ctx context.Context, phoneNumber, upiHandle, name, pin string) (models.AuthResult, error)
}

// State is the application-wide authentication state.
type State struct {
	Authenticated bool
	User          models.User
}

// Session signs the user in and out. It is the only writer of the credential
// store and of State.
type Session struct {
	client Authenticator
	store  files.CredentialStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextID  int
	pending []notice
}

// notice is a state change waiting to be delivered outside the lock.
type notice struct {
	state State
	subs  []func(State)
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for credential expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession restores the authentication state from store. An expired stored
// credential is cleared.
func NewSession(client Authenticator, store files.CredentialStore, opts ...Option) *Session {
	s := &Session{
		client: client,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mu.Lock()
	s.refresh()
	s.unlock()
	return s
}

// Login validates input, signs in and stores the credential. Any failure
// returns ErrLoginFailed.
func (s *Session) Login(ctx context.Context, phoneNumber, pin string) error {
	phoneNumber, pin = strings.TrimSpace(phoneNumber), strings.TrimSpace(pin)
	if phoneNumber == "" || pin == "" {
		return ErrMissingFields
	}
	res, err := s.client.Login(ctx, phoneNumber, pin)
	if err != nil {
		s.logger.Debug("login failed", "kind", api.KindOf(err).String(), "error", err)
		return ErrLoginFailed
	}
	s.signIn(res)
	return nil
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, phoneNumber, upiHandle, name, pin string) error {
	phoneNumber, pin = strings.TrimSpace(phoneNumber), strings.TrimSpace(pin)
	upiHandle, name = strings.TrimSpace(upiHandle), strings.TrimSpace(name)
	if phoneNumber == "" || pin == "" || upiHandle == "" || name == "" {
		return ErrMissingFields
	}
	res, err := s.client.Register(ctx, phoneNumber, upiHandle, name, pin)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	s.signIn(res)
	return nil
}

// Logout forgets the credential. It makes no network call.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.unlock()
	s.store.Clear()
	s.set(State{})
	s.logger.Info("signed out")
}

// State returns the current authentication state, signing out first if the
// credential has expired.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.unlock()
	s.refresh()
	return s.state
}

func (s *Session) IsAuthenticated() bool { return s.State().Authenticated }

// CurrentUser returns the signed-in user.
func (s *Session) CurrentUser() (models.User, bool) {
	st := s.State()
	return st.User, st.Authenticated
}

// Subscribe calls fn with every new State until the returned function is
// called. fn runs after the session lock is released and may call State.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.unlock()
		delete(s.subs, id)
	}
}

func (s *Session) signIn(res models.AuthResult) {
	cred := models.NewCredential(res, s.now())
	s.mu.Lock()
	defer s.unlock()
	s.store.Set(cred)
	s.set(State{Authenticated: true, User: cred.User()})
	s.logger.Info("signed in", "user_id", cred.UserID)
}

// refresh derives the state from the store.
func (s *Session) refresh() {
	cred, ok := s.store.Get()
	if ok && cred.Expired(s.now()) {
		s.logger.Info("stored credential expired", "user_id", cred.UserID)
		s.store.Clear()
		ok = false
	}
	if !ok {
		s.set(State{})
		return
	}
	s.set(State{Authenticated: true, User: cred.User()})
}

func (s *Session) set(st State) {
	if st == s.state {
		return
	}
	s.state = st
	if len(s.subs) == 0 {
		return
	}
	n := notice{state: st, subs: make([]func(State), 0, len(s.subs))}
	for _, fn := range s.subs {
		n.subs = append(n.subs, fn)
	}
	s.pending = append(s.pending, n)
}

// unlock releases the mutex and then delivers queued state changes.
func (s *Session) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, n := range pending {
		for _, fn := range n.subs {
			fn(n.state)
		}
	}
}
