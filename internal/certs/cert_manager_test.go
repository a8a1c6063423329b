package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCert(t *testing.T, path, cn string, notAfter time.Time) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestLoadCertificates_ReadsBundlesAndSkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	future := time.Now().Add(24 * time.Hour)
	writeCert(t, filepath.Join(dir, "bundle.pem"), "a", future)
	writeCert(t, filepath.Join(dir, "bundle.pem"), "b", future)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0700))
	writeCert(t, filepath.Join(dir, "sub", "c.crt"), "c", future)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0600))

	certs, err := NewCertManager(dir, nil).LoadCertificates()
	require.NoError(t, err)
	var names []string
	for _, c := range certs {
		names = append(names, c.Subject.CommonName)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}

func TestLoadPool_SkipsExpired(t *testing.T) {
	dir := t.TempDir()
	writeCert(t, filepath.Join(dir, "old.pem"), "old", time.Now().Add(-time.Hour))

	_, err := NewCertManager(dir, nil).LoadPool()
	assert.ErrorIs(t, err, ErrNoCertificates)

	writeCert(t, filepath.Join(dir, "new.pem"), "new", time.Now().Add(time.Hour))
	pool, err := NewCertManager(dir, nil).LoadPool()
	require.NoError(t, err)
	assert.NotNil(t, pool)
}

func TestLoadCertificates_BadPEM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pem"), []byte("not a cert"), 0600))
	_, err := NewCertManager(dir, nil).LoadCertificates()
	assert.Error(t, err)
}
