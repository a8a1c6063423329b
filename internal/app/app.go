// Package app assembles the client from configuration: the sealed credential
// store, the API client, the auth session and payment sessions.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/auth"
	"github.com/harrylevesque/qrpay/internal/certs"
	"github.com/harrylevesque/qrpay/internal/config"
	"github.com/harrylevesque/qrpay/internal/crypto"
	"github.com/harrylevesque/qrpay/internal/files"
	"github.com/harrylevesque/qrpay/internal/metrics"
	"github.com/harrylevesque/qrpay/internal/models"
	"github.com/harrylevesque/qrpay/internal/payment"
	"github.com/harrylevesque/qrpay/internal/utils"
)

// App holds the long-lived client components.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Registry    *prometheus.Registry
	Metrics     *metrics.Client
	Credentials files.CredentialStore
	Client      *api.Client
	Auth        *auth.Session
	Receipts    *files.ReceiptStore

	logCloser io.Closer
}

// Options tweak New for embedding and tests.
type Options struct {
	// Logger replaces the logger built from cfg.Log.
	Logger *slog.Logger
	// DeviceFingerprint replaces the detected machine identifier.
	DeviceFingerprint string
	// Credentials replaces the sealed file store.
	Credentials files.CredentialStore
}

// New validates cfg and builds the App.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}

	a.Logger, a.logCloser = opts.Logger, nopCloser{}
	if a.Logger == nil {
		logger, closer, err := utils.NewLogger(utils.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format, Path: cfg.Log.Path})
		if err != nil {
			return nil, err
		}
		a.Logger, a.logCloser = logger, closer
	}
	a.Metrics = metrics.NewClient(a.Registry)

	a.Credentials = opts.Credentials
	if a.Credentials == nil {
		store, err := openCredentialStore(cfg.DataDir, opts.DeviceFingerprint, a.Logger)
		if err != nil {
			a.logCloser.Close()
			return nil, err
		}
		a.Credentials = store
	}

	timeout, _ := cfg.Timeout()
	clientOpts := []api.Option{
		api.WithTimeout(timeout),
		api.WithLogger(a.Logger),
		api.WithMetrics(a.Metrics),
	}
	if cfg.CADir != "" {
		pool, err := certs.NewCertManager(cfg.CADir, a.Logger).LoadPool()
		if err != nil {
			a.logCloser.Close()
			return nil, fmt.Errorf("load CA certificates: %w", err)
		}
		clientOpts = append(clientOpts, api.WithRootCAs(pool))
	}
	a.Client = api.NewClient(cfg.ServerURL, a.Credentials, clientOpts...)
	a.Auth = auth.NewSession(a.Client, a.Credentials, auth.WithLogger(a.Logger))
	a.Receipts = files.NewReceiptStore(filepath.Join(cfg.DataDir, files.ReceiptFileName))
	return a, nil
}

func openCredentialStore(dataDir, fingerprint string, logger *slog.Logger) (*files.FileStore, error) {
	master, err := files.LoadOrCreateMasterKey(dataDir)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	if fingerprint == "" {
		fingerprint = utils.DeviceFingerprint()
	}
	key, err := crypto.DeriveStoreKey(master, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}
	return files.OpenFileStore(filepath.Join(dataDir, files.CredentialFileName), key, logger)
}

// NewPayment returns a payment session that records a receipt when it
// succeeds.
func (a *App) NewPayment(opts ...payment.Option) *payment.Session {
	base := []payment.Option{
		payment.WithLogger(a.Logger),
		payment.WithMetrics(a.Metrics),
		payment.WithObserver(a.recordReceipt),
	}
	return payment.NewSession(a.Client, append(base, opts...)...)
}

func (a *App) recordReceipt(snap payment.Snapshot) {
	if snap.State != payment.Succeeded || snap.Payment == nil || snap.Result == nil {
		return
	}
	_, err := a.Receipts.Append(models.Receipt{
		SessionID:         snap.Payment.SessionID,
		TransactionID:     snap.Result.TransactionID,
		MerchantName:      snap.Payment.Merchant.Name,
		MerchantUpiHandle: snap.Payment.Merchant.UpiID,
		Amount:            snap.Payment.Amount,
		Status:            snap.Result.Status,
		ProviderReference: snap.Result.ProviderReference,
	})
	if err != nil {
		a.Logger.Error("record receipt", "transaction_id", snap.Result.TransactionID, "error", err)
	}
}

// Close flushes metrics to the configured textfile and releases the log file.
func (a *App) Close() error {
	var errs []error
	if a.Config.MetricsFile != "" {
		if err := metrics.WriteTextfile(a.Registry, a.Config.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
