package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/qrpay/internal/crypto"
)

const (
	// MasterKeyEnv overrides the master key file with a hex-encoded key.
	MasterKeyEnv  = "QRPAY_MASTER_KEY_HEX"
	masterKeyFile = "master.key"
)

var (
	// ErrMasterKeyNotFound is returned when neither the environment nor the
	// data directory provides a master key.
	ErrMasterKeyNotFound = errors.New("master key not found")
	// ErrMasterKeyExists is returned when CreateMasterKey would overwrite a key.
	ErrMasterKeyExists = errors.New("master key already exists")
)

// MasterKeyPath returns the location of the master key inside dir.
func MasterKeyPath(dir string) string {
	return filepath.Join(dir, masterKeyFile)
}

// ReadMasterKey returns the 32-byte master key from MasterKeyEnv or from the
// master.key file in dir.
func ReadMasterKey(dir string) ([]byte, error) {
	h := os.Getenv(MasterKeyEnv)
	if h == "" {
		data, err := os.ReadFile(MasterKeyPath(dir))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMasterKeyNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read master key: %w", err)
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != crypto.KeySize {
		return nil, fmt.Errorf("master key length must be 32 bytes (hex 64 chars): %w", crypto.ErrInvalidKeyLength)
	}
	return b, nil
}

// CreateMasterKey writes a fresh master key to dir and refuses to overwrite an
// existing one.
func CreateMasterKey(dir string) ([]byte, error) {
	path := MasterKeyPath(dir)
	if _, err := os.Stat(path); err == nil {
		return nil, ErrMasterKeyExists
	}
	key, err := crypto.NewKey()
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("write master key: %w", err)
	}
	return key, nil
}

// LoadOrCreateMasterKey reads the master key, creating one on first use.
func LoadOrCreateMasterKey(dir string) ([]byte, error) {
	key, err := ReadMasterKey(dir)
	if errors.Is(err, ErrMasterKeyNotFound) {
		return CreateMasterKey(dir)
	}
	return key, err
}
