package payment

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/metrics"
	"github.com/harrylevesque/qrpay/internal/models"
	"github.com/harrylevesque/qrpay/internal/scan"
)

// Client is the part of api.Client a Session calls.
type Client interface {
	InitiatePayment(ctx context.Context, qrData string, amount float64, idempotencyKey string) (models.PaymentInitResult, error)
	ExecutePayment(ctx context.Context, sessionID, pin string) (models.ExecutionResult, error)
}

// Session is the state machine for a single payment attempt at a time. The
// mutex guards every field and is never held across a network call or an
// observer; gen changes on every new attempt so late responses can be
// recognised.
type Session struct {
	client    Client
	logger    *slog.Logger
	metrics   *metrics.Client
	newKey    func() string
	observers []func(Snapshot)

	mu      sync.Mutex
	gen     uint64
	state   State
	code    string
	amount  float64
	key     string
	payment *models.PaymentInitResult
	result  *models.ExecutionResult
	err     error
	pending []Snapshot
}

// Option configures a Session.
type Option func(*Session)

// WithObserver registers fn to receive a Snapshot after every change. fn runs
// on the goroutine that made the change, after the session lock is released,
// so it may call back into the Session.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Client) Option {
	return func(s *Session) { s.metrics = m }
}

// WithKeyGenerator replaces the idempotency key source.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Session) { s.newKey = fn }
}

// NewSession returns an Idle session calling client.
func NewSession(client Client, opts ...Option) *Session {
	s := &Session{
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.unlock()
	return s.snapshot()
}

// Scan starts a new attempt for code. It is accepted while Idle or after the
// previous attempt finished; a live attempt must be cancelled first.
func (s *Session) Scan(code string) error {
	code = strings.TrimSpace(code)

	s.mu.Lock()
	defer s.unlock()
	if s.state.busy() {
		return ErrBusy
	}
	if s.state == AwaitingConfirmation {
		return ErrWrongState
	}
	if code == "" {
		return ErrNoScan
	}
	s.reset()
	s.code = code
	s.logger.Debug("payment code scanned", "attempt", s.gen)
	s.notify()
	return nil
}

// Capture waits for src to yield a code and starts an attempt with it.
func (s *Session) Capture(ctx context.Context, src scan.Source) error {
	code, err := scan.Await(ctx, src)
	if err != nil {
		return err
	}
	return s.Scan(code)
}

// Initiate submits the amount for the scanned code. On failure the session
// returns to Idle and a later Initiate reuses the same idempotency key.
func (s *Session) Initiate(ctx context.Context, amountText string) (models.PaymentInitResult, error) {
	s.mu.Lock()
	if s.state.busy() {
		s.unlock()
		return models.PaymentInitResult{}, ErrBusy
	}
	if s.state != Idle {
		s.unlock()
		return models.PaymentInitResult{}, ErrWrongState
	}
	if s.code == "" {
		s.unlock()
		return models.PaymentInitResult{}, ErrNoScan
	}
	amount, err := ParseAmount(amountText)
	if err != nil {
		s.err = err
		s.notify()
		s.unlock()
		return models.PaymentInitResult{}, err
	}
	if s.key == "" {
		s.key = s.newKey()
	}
	s.amount = amount
	s.err = nil
	s.transition(Initiating)
	gen, code, key := s.gen, s.code, s.key
	s.unlock()

	res, err := s.client.InitiatePayment(ctx, code, amount, key)

	s.mu.Lock()
	defer s.unlock()
	if gen != s.gen {
		s.logger.Debug("discarding initiate response for cancelled attempt", "attempt", gen)
		return models.PaymentInitResult{}, ErrCancelled
	}
	if err != nil {
		s.err = err
		s.logger.Info("payment initiate failed", "attempt", gen, "kind", api.KindOf(err).String(), "error", err)
		s.transition(Idle)
		return models.PaymentInitResult{}, err
	}
	s.payment = &res
	s.transition(AwaitingConfirmation)
	return res, nil
}

// Confirm authorizes the initiated payment with pin. A definitive refusal by
// the service fails the attempt; any other failure leaves it awaiting
// confirmation so the user can retry or cancel. Execute is never retried
// automatically and initiate is never re-run.
func (s *Session) Confirm(ctx context.Context, pin string) (models.ExecutionResult, error) {
	pin = strings.TrimSpace(pin)

	s.mu.Lock()
	if s.state.busy() {
		s.unlock()
		return models.ExecutionResult{}, ErrBusy
	}
	if s.state != AwaitingConfirmation {
		s.unlock()
		return models.ExecutionResult{}, ErrWrongState
	}
	if pin == "" {
		s.err = ErrEmptyPIN
		s.notify()
		s.unlock()
		return models.ExecutionResult{}, ErrEmptyPIN
	}
	s.err = nil
	s.transition(Executing)
	gen, sessionID := s.gen, s.payment.SessionID
	s.unlock()

	res, err := s.client.ExecutePayment(ctx, sessionID, pin)

	s.mu.Lock()
	defer s.unlock()
	if gen != s.gen {
		s.logger.Debug("discarding execute response for cancelled attempt", "attempt", gen)
		return models.ExecutionResult{}, ErrCancelled
	}
	if err != nil {
		s.err = err
		if api.IsDefinitive(err) {
			s.logger.Info("payment declined", "attempt", gen, "session_id", sessionID, "error", err)
			s.transition(Failed)
		} else {
			s.logger.Warn("payment outcome unknown", "attempt", gen, "session_id", sessionID, "kind", api.KindOf(err).String(), "error", err)
			s.transition(AwaitingConfirmation)
		}
		return models.ExecutionResult{}, err
	}
	s.result = &res
	s.logger.Info("payment succeeded", "attempt", gen, "transaction_id", res.TransactionID)
	s.transition(Succeeded)
	return res, nil
}

// Cancel abandons the current attempt from any state. A response still in
// flight is discarded when it arrives.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.unlock()
	from := s.state
	s.reset()
	s.observe(from, Idle)
	s.notify()
}

// ParseAmount parses user-entered amount text. Only finite values greater
// than zero are accepted.
func ParseAmount(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// reset discards the attempt and bumps the generation.
func (s *Session) reset() {
	s.gen++
	s.state = Idle
	s.code = ""
	s.amount = 0
	s.key = ""
	s.payment = nil
	s.result = nil
	s.err = nil
}

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	s.observe(from, to)
	s.notify()
}

func (s *Session) observe(from, to State) {
	if from == to {
		return
	}
	s.metrics.ObserveTransition(from.String(), to.String())
	s.logger.Debug("payment transition", "from", from.String(), "to", to.String())
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:          s.state,
		Code:           s.code,
		Amount:         s.amount,
		IdempotencyKey: s.key,
		Err:            s.err,
	}
	if s.payment != nil {
		p := *s.payment
		snap.Payment = &p
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

// notify queues a snapshot for the observers. It is delivered by unlock.
func (s *Session) notify() {
	if len(s.observers) == 0 {
		return
	}
	s.pending = append(s.pending, s.snapshot())
}

// unlock releases the mutex and then hands queued snapshots to the observers.
func (s *Session) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, snap := range pending {
		for _, fn := range s.observers {
			fn(snap)
		}
	}
}
