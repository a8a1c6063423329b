// Package api is the transport to the payment service: one JSON POST per
// call, bearer authorization from the credential store and a fixed failure
// taxonomy. It never retries.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harrylevesque/qrpay/internal/metrics"
	"github.com/harrylevesque/qrpay/internal/models"
	"github.com/harrylevesque/qrpay/internal/wire"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	initiatePath = "/api/payment/initiate"
	executePath  = "/api/payment/execute"

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 1 << 20
	// DefaultTimeout bounds a single call when no other timeout is configured.
	DefaultTimeout = 30 * time.Second
)

// CredentialSource yields the current credential, if any.
type CredentialSource interface {
	Get() (models.Credential, bool)
}

// Client calls the payment service. It is safe for concurrent use.
type Client struct {
	baseURL string
	creds   CredentialSource
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Client
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout of the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRootCAs trusts pool for HTTPS connections to the service.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Client) {
		if pool == nil {
			return
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		c.http.Transport = tr
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Client) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the clock used to check token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a Client for the service at baseURL. creds may be nil, in
// which case every authorized call fails with Unauthenticated.
func NewClient(baseURL string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	PhoneNumber string
	PIN         string
}

type registerRequest struct {
	PhoneNumber string
	UpiID       string
	Name        string
	PIN         string
}

type initiateRequest struct {
	QRData         string
	Amount         float64
	IdempotencyKey string
}

type executeRequest struct {
	SessionID string
	PIN       string
}

type executeResponse struct {
	TransactionID string
	Status        string
	UpiTxnID      *string
	Message       string
}

type errorResponse struct {
	Error string
}

// Login exchanges a phone number and PIN for a token. It needs no credential.
func (c *Client) Login(ctx context.Context, phoneNumber, pin string) (models.AuthResult, error) {
	var res models.AuthResult
	err := c.post(ctx, "login", loginPath, "", loginRequest{PhoneNumber: phoneNumber, PIN: pin}, &res)
	if err != nil {
		return models.AuthResult{}, err
	}
	if res.Token == "" || res.User.ID == "" {
		return models.AuthResult{}, malformed("login", "missing token or user id")
	}
	return res, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, phoneNumber, upiHandle, name, pin string) (models.AuthResult, error) {
	var res models.AuthResult
	req := registerRequest{PhoneNumber: phoneNumber, UpiID: upiHandle, Name: name, PIN: pin}
	if err := c.post(ctx, "register", registerPath, "", req, &res); err != nil {
		return models.AuthResult{}, err
	}
	if res.Token == "" || res.User.ID == "" {
		return models.AuthResult{}, malformed("register", "missing token or user id")
	}
	return res, nil
}

// InitiatePayment opens a payment session for the scanned payload. The
// idempotency key lets the service collapse repeated submissions of the same
// attempt into one session.
func (c *Client) InitiatePayment(ctx context.Context, qrData string, amount float64, idempotencyKey string) (models.PaymentInitResult, error) {
	token, err := c.token("initiate")
	if err != nil {
		return models.PaymentInitResult{}, err
	}
	var res models.PaymentInitResult
	req := initiateRequest{QRData: qrData, Amount: amount, IdempotencyKey: idempotencyKey}
	if err := c.post(ctx, "initiate", initiatePath, token, req, &res); err != nil {
		return models.PaymentInitResult{}, err
	}
	if res.SessionID == "" {
		return models.PaymentInitResult{}, malformed("initiate", "missing session_id")
	}
	return res, nil
}

// ExecutePayment authorizes the session with the user's PIN. This call moves
// money; a TransportFailure leaves its outcome unknown.
func (c *Client) ExecutePayment(ctx context.Context, sessionID, pin string) (models.ExecutionResult, error) {
	token, err := c.token("execute")
	if err != nil {
		return models.ExecutionResult{}, err
	}
	var res executeResponse
	if err := c.post(ctx, "execute", executePath, token, executeRequest{SessionID: sessionID, PIN: pin}, &res); err != nil {
		return models.ExecutionResult{}, err
	}
	if res.TransactionID == "" || res.Status == "" {
		return models.ExecutionResult{}, malformed("execute", "missing transaction_id or status")
	}
	out := models.ExecutionResult{TransactionID: res.TransactionID, Status: res.Status, Message: res.Message}
	if res.UpiTxnID != nil {
		out.ProviderReference = *res.UpiTxnID
	}
	return out, nil
}

// token snapshots the bearer token once for the whole call.
func (c *Client) token(op string) (string, error) {
	if c.creds == nil {
		return "", &Error{Op: op, Kind: Unauthenticated, Err: errors.New("no credential")}
	}
	cred, ok := c.creds.Get()
	if !ok || cred.Token == "" {
		return "", &Error{Op: op, Kind: Unauthenticated, Err: errors.New("no credential")}
	}
	if cred.Expired(c.now()) {
		return "", &Error{Op: op, Kind: Unauthenticated, Err: errors.New("credential expired")}
	}
	return cred.Token, nil
}

func (c *Client) post(ctx context.Context, op, path, token string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		c.metrics.ObserveRequest(op, outcome, time.Since(start))
	}()

	body, err := wire.Marshal(in)
	if err != nil {
		return &Error{Op: op, Kind: InvalidRequest, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Kind: InvalidRequest, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "op", op, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("api transport failure", "op", op, "error", err)
		return &Error{Op: op, Kind: TransportFailure, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: op, Kind: TransportFailure, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("api response", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Op: op, Kind: ServerRejected, StatusCode: resp.StatusCode, Body: data}
		var msg errorResponse
		if wire.Unmarshal(data, &msg) == nil {
			e.Message = msg.Error
		}
		return e
	}
	if err := wire.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: MalformedResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func malformed(op, reason string) error {
	return &Error{Op: op, Kind: MalformedResponse, Err: errors.New(reason)}
}
