package server

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/harrylevesque/qrpay/internal/auth"
	"github.com/harrylevesque/qrpay/internal/models"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidPIN          = errors.New("invalid pin")
	ErrInvalidToken        = errors.New("missing or invalid token")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrPINFormat           = errors.New("pin must be 4-12 digits")
	ErrMissingFields       = errors.New("missing required fields")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// DefaultBalance is credited to accounts created through /auth/register.
const DefaultBalance = 10000

// Transaction statuses.
const (
	StatusInitiated = "initiated"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
)

type user struct {
	id      string
	phone   string
	upiID   string
	name    string
	pinHash string
	balance float64
}

func (u *user) public() models.User {
	return models.User{ID: u.id, Name: u.name, UpiID: u.upiID, Balance: u.balance}
}

type session struct {
	userID    string
	expiresAt time.Time
}

type transaction struct {
	id             string
	userID         string
	merchant       models.Merchant
	amount         float64
	status         string
	idempotencyKey string
	upiTxnID       string
	createdAt      time.Time
}

// Store is the in-memory state of the development backend.
type Store struct {
	mu        sync.Mutex
	users     map[string]*user // by id
	phones    map[string]string
	merchants map[string]models.Merchant // by qr payload
	tokens    map[string]session
	txns      map[string]*transaction
	idem      map[string]string // user id + key -> transaction id
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewStore returns an empty store issuing tokens valid for tokenTTL.
func NewStore(tokenTTL time.Duration) *Store {
	return &Store{
		users:     make(map[string]*user),
		phones:    make(map[string]string),
		merchants: make(map[string]models.Merchant),
		tokens:    make(map[string]session),
		txns:      make(map[string]*transaction),
		idem:      make(map[string]string),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// AddUser creates an account with the given balance.
func (s *Store) AddUser(phone, upiID, name, pin string, balance float64) (models.User, error) {
	if phone == "" || upiID == "" || name == "" {
		return models.User{}, ErrMissingFields
	}
	if len(pin) < 4 || len(pin) > 12 {
		return models.User{}, ErrPINFormat
	}
	hash, err := auth.HashPIN(pin)
	if err != nil {
		return models.User{}, fmt.Errorf("hash pin: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.phones[phone]; ok {
		return models.User{}, ErrAlreadyExists
	}
	u := &user{id: uuid.NewString(), phone: phone, upiID: upiID, name: name, pinHash: hash, balance: balance}
	s.users[u.id] = u
	s.phones[phone] = u.id
	return u.public(), nil
}

// AddMerchant makes qrData resolve to m.
func (s *Store) AddMerchant(qrData string, m models.Merchant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchants[qrData] = m
}

// Register creates an account and signs it in.
func (s *Store) Register(phone, upiID, name, pin string) (models.AuthResult, error) {
	u, err := s.AddUser(phone, upiID, name, pin, DefaultBalance)
	if err != nil {
		return models.AuthResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mint(u.ID), nil
}

// Login checks the PIN for phone and issues a token.
func (s *Store) Login(phone, pin string) (models.AuthResult, error) {
	s.mu.Lock()
	id, ok := s.phones[phone]
	var hash string
	if ok {
		hash = s.users[id].pinHash
	}
	s.mu.Unlock()
	if !ok || !auth.CheckPIN(pin, hash) {
		return models.AuthResult{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mint(id), nil
}

// Authenticate returns the user id a live token belongs to.
func (s *Store) Authenticate(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.tokens, token)
		return "", ErrInvalidToken
	}
	return sess.userID, nil
}

// Initiate opens a payment session. A repeated idempotency key from the same
// user returns the original session.
func (s *Store) Initiate(userID, qrData string, amount float64, key string) (models.PaymentInitResult, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return models.PaymentInitResult{}, ErrInvalidAmount
	}
	if qrData == "" || key == "" {
		return models.PaymentInitResult{}, ErrMissingFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idemKey := userID + "\x00" + key
	if id, ok := s.idem[idemKey]; ok {
		return initResult(s.txns[id]), nil
	}
	m, ok := s.merchants[qrData]
	if !ok {
		return models.PaymentInitResult{}, fmt.Errorf("merchant %w", ErrNotFound)
	}
	t := &transaction{
		id:             uuid.NewString(),
		userID:         userID,
		merchant:       m,
		amount:         amount,
		status:         StatusInitiated,
		idempotencyKey: key,
		createdAt:      s.now().UTC(),
	}
	s.txns[t.id] = t
	s.idem[idemKey] = t.id
	return initResult(t), nil
}

// Execute verifies the PIN and settles the session. Executing a session that
// is already settled returns its stored outcome.
func (s *Store) Execute(userID, sessionID, pin string) (ExecuteResult, error) {
	s.mu.Lock()
	t, ok := s.txns[sessionID]
	if !ok || t.userID != userID {
		s.mu.Unlock()
		return ExecuteResult{}, fmt.Errorf("session %w", ErrNotFound)
	}
	if t.status != StatusInitiated {
		res := executeResult(t, "transaction already processed")
		s.mu.Unlock()
		return res, nil
	}
	hash := s.users[userID].pinHash
	s.mu.Unlock()

	if !auth.CheckPIN(pin, hash) {
		return ExecuteResult{}, ErrInvalidPIN
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.status != StatusInitiated {
		return executeResult(t, "transaction already processed"), nil
	}
	u := s.users[userID]
	if u.balance < t.amount {
		return ExecuteResult{}, ErrInsufficientBalance
	}
	u.balance -= t.amount
	t.status = StatusSuccess
	t.upiTxnID = "UPI" + uuid.NewString()
	return executeResult(t, "payment successful"), nil
}

// Balance returns the balance of a user.
func (s *Store) Balance(userID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, false
	}
	return u.balance, true
}

func (s *Store) mint(userID string) models.AuthResult {
	token := uuid.NewString()
	s.tokens[token] = session{userID: userID, expiresAt: s.now().Add(s.tokenTTL)}
	return models.AuthResult{
		Token:     token,
		User:      s.users[userID].public(),
		ExpiresIn: int64(s.tokenTTL / time.Second),
	}
}

// ExecuteResult is the wire shape of an execute response.
type ExecuteResult struct {
	TransactionID string
	Status        string
	UpiTxnID      *string
	Message       string
}

func initResult(t *transaction) models.PaymentInitResult {
	return models.PaymentInitResult{
		SessionID: t.id,
		Merchant:  t.merchant,
		Amount:    t.amount,
		Status:    t.status,
	}
}

func executeResult(t *transaction, msg string) ExecuteResult {
	res := ExecuteResult{TransactionID: t.id, Status: t.status, Message: msg}
	if t.upiTxnID != "" {
		ref := t.upiTxnID
		res.UpiTxnID = &ref
	}
	return res
}

// Seed is the YAML shape of a seed file.
type Seed struct {
	Users []struct {
		PhoneNumber string  `yaml:"phone_number"`
		UpiID       string  `yaml:"upi_id"`
		Name        string  `yaml:"name"`
		PIN         string  `yaml:"pin"`
		Balance     float64 `yaml:"balance"`
	} `yaml:"users"`
	Merchants []struct {
		QRData   string  `yaml:"qr_data"`
		Name     string  `yaml:"name"`
		UpiID    string  `yaml:"upi_id"`
		Category *string `yaml:"category"`
	} `yaml:"merchants"`
}

// DemoSeed is loaded when no seed file is configured.
const DemoSeed = `
users:
  - phone_number: "9999999999"
    upi_id: demo@qrpay
    name: Demo User
    pin: "1234"
    balance: 10000
merchants:
  - qr_data: "upi://pay?pa=shop@upi&pn=Shop"
    name: Shop
    upi_id: shop@upi
    category: grocery
`

// LoadSeed applies a seed document to the store.
func (s *Store) LoadSeed(data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed: %w", err)
	}
	for _, u := range seed.Users {
		if _, err := s.AddUser(u.PhoneNumber, u.UpiID, u.Name, u.PIN, u.Balance); err != nil {
			return fmt.Errorf("seed user %s: %w", u.PhoneNumber, err)
		}
	}
	for _, m := range seed.Merchants {
		if m.QRData == "" {
			return fmt.Errorf("seed merchant %s: %w", m.Name, ErrMissingFields)
		}
		s.AddMerchant(m.QRData, models.Merchant{Name: m.Name, UpiID: m.UpiID, Category: m.Category})
	}
	return nil
}

// LoadSeedFile applies the seed file at path.
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	return s.LoadSeed(data)
}
