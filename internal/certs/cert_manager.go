// Package certs loads extra trust anchors for talking to a payment service
// behind a private CA.
package certs

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoCertificates is returned by LoadPool when the directory holds no usable
// certificate.
var ErrNoCertificates = errors.New("no usable certificates found")

// CertManager reads PEM certificates from a directory.
type CertManager struct {
	certDir string
	logger  *slog.Logger
	now     func() time.Time
}

// NewCertManager creates a new CertManager for the given directory.
func NewCertManager(certDir string, logger *slog.Logger) *CertManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &CertManager{certDir: certDir, logger: logger, now: time.Now}
}

// LoadCertificates loads every certificate in *.crt and *.pem files under the
// cert directory. A file may hold several PEM blocks.
func (cm *CertManager) LoadCertificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	err := filepath.WalkDir(cm.certDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !(strings.HasSuffix(d.Name(), ".crt") || strings.HasSuffix(d.Name(), ".pem")) {
			return nil
		}
		found, err := loadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		certs = append(certs, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return certs, nil
}

// LoadPool returns the system pool extended with every unexpired certificate
// in the directory. Expired certificates are logged and skipped.
func (cm *CertManager) LoadPool() (*x509.CertPool, error) {
	certs, err := cm.LoadCertificates()
	if err != nil {
		return nil, err
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	added := 0
	for _, cert := range certs {
		if cm.IsExpired(cert) {
			cm.logger.Warn("skipping expired certificate", "subject", cert.Subject.String(), "not_after", cert.NotAfter)
			continue
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return nil, ErrNoCertificates
	}
	return pool, nil
}

// IsExpired checks if a certificate is expired.
func (cm *CertManager) IsExpired(cert *x509.Certificate) bool {
	return cert.NotAfter.Before(cm.now())
}

func loadFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("failed to parse certificate PEM")
	}
	return certs, nil
}
