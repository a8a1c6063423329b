// Package mobile exposes the client to native shells through gomobile. Every
// exported signature uses only strings, bools, errors and interfaces so
// `gomobile bind` can generate Swift and Kotlin bindings.
package mobile

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/app"
	"github.com/harrylevesque/qrpay/internal/auth"
	"github.com/harrylevesque/qrpay/internal/config"
	"github.com/harrylevesque/qrpay/internal/payment"
	"github.com/harrylevesque/qrpay/internal/scan"
	"github.com/harrylevesque/qrpay/internal/wire"
)

// Listener receives state changes as JSON documents. Calls arrive on the
// goroutine that caused the change, after the change is complete, so a
// listener may read PaymentState or AuthState.
type Listener interface {
	OnPaymentState(snapshotJSON string)
	OnAuthState(stateJSON string)
}

// Bridge is one signed-in client with a single payment sheet.
type Bridge struct {
	app      *app.App
	pay      *payment.Session
	listener Listener
}

// NewBridge builds a client. configJSON holds config.yaml fields as JSON and
// may be empty; dataDir is the app's private storage directory and deviceID
// the platform identifier (identifierForVendor, ANDROID_ID).
func NewBridge(configJSON, dataDir, deviceID string) (*Bridge, error) {
	cfg := config.Default()
	if configJSON != "" {
		if err := yaml.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	a, err := app.New(cfg, app.Options{DeviceFingerprint: deviceID})
	if err != nil {
		return nil, err
	}
	b := &Bridge{app: a}
	b.pay = a.NewPayment(payment.WithObserver(b.paymentChanged))
	a.Auth.Subscribe(b.authChanged)
	return b, nil
}

// SetListener registers l for state callbacks. Call it before any other
// method.
func (b *Bridge) SetListener(l Listener) { b.listener = l }

// Close flushes metrics and closes the log file.
func (b *Bridge) Close() error { return b.app.Close() }

func (b *Bridge) Login(phoneNumber, pin string) error {
	return b.app.Auth.Login(context.Background(), phoneNumber, pin)
}

func (b *Bridge) Register(phoneNumber, upiHandle, name, pin string) error {
	return b.app.Auth.Register(context.Background(), phoneNumber, upiHandle, name, pin)
}

// Logout signs out and abandons any payment in progress.
func (b *Bridge) Logout() {
	b.pay.Cancel()
	b.app.Auth.Logout()
}

// AuthState returns {"authenticated":bool,"user":{...}}.
func (b *Bridge) AuthState() string {
	return encodeAuth(b.app.Auth.State())
}

// Scan hands a decoded QR payload to the payment sheet.
func (b *Bridge) Scan(code string) error { return b.pay.Scan(code) }

// Initiate submits the amount text and returns the payment state.
func (b *Bridge) Initiate(amount string) (string, error) {
	_, err := b.pay.Initiate(context.Background(), amount)
	return b.PaymentState(), err
}

// Confirm submits the PIN and returns the payment state.
func (b *Bridge) Confirm(pin string) (string, error) {
	_, err := b.pay.Confirm(context.Background(), pin)
	return b.PaymentState(), err
}

// Cancel dismisses the payment sheet.
func (b *Bridge) Cancel() { b.pay.Cancel() }

// PaymentState returns the current payment snapshot as JSON.
func (b *Bridge) PaymentState() string {
	return encodeSnapshot(b.pay.Snapshot())
}

// ParseQR decodes a upi://pay payload for display.
func (b *Bridge) ParseQR(code string) (string, error) {
	p, err := scan.ParseUPI(code)
	if err != nil {
		return "", err
	}
	out, err := wire.Marshal(p)
	return string(out), err
}

// Receipts returns the local payment history as a JSON array.
func (b *Bridge) Receipts() (string, error) {
	list, err := b.app.Receipts.List()
	if err != nil {
		return "", err
	}
	out, err := wire.Marshal(list)
	return string(out), err
}

func (b *Bridge) paymentChanged(s payment.Snapshot) {
	if b.listener != nil {
		b.listener.OnPaymentState(encodeSnapshot(s))
	}
}

func (b *Bridge) authChanged(s auth.State) {
	if b.listener != nil {
		b.listener.OnAuthState(encodeAuth(s))
	}
}

type snapshotView struct {
	State             string
	Code              string
	Amount            float64
	SessionID         string
	MerchantName      string
	MerchantUpiID     string
	MerchantCategory  string
	TransactionID     string
	ProviderReference string
	Message           string
	Error             string
	ErrorKind         string
	StatusCode        int
	Retryable         bool
}

func encodeSnapshot(s payment.Snapshot) string {
	v := snapshotView{
		State:     s.State.String(),
		Code:      s.Code,
		Amount:    s.Amount,
		Retryable: s.Retryable(),
	}
	if p := s.Payment; p != nil {
		v.SessionID = p.SessionID
		v.MerchantName = p.Merchant.Name
		v.MerchantUpiID = p.Merchant.UpiID
		if p.Merchant.Category != nil {
			v.MerchantCategory = *p.Merchant.Category
		}
	}
	if r := s.Result; r != nil {
		v.TransactionID = r.TransactionID
		v.ProviderReference = r.ProviderReference
		v.Message = r.Message
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
		v.ErrorKind = api.KindOf(s.Err).String()
		var apiErr *api.Error
		if errors.As(s.Err, &apiErr) {
			v.StatusCode = apiErr.StatusCode
			if apiErr.Message != "" {
				v.Error = apiErr.Message
			}
		}
	}
	out, _ := wire.Marshal(v)
	return string(out)
}

func encodeAuth(s auth.State) string {
	out, _ := wire.Marshal(s)
	return string(out)
}
