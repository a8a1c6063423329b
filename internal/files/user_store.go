package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/harrylevesque/qrpay/internal/crypto"
	"github.com/harrylevesque/qrpay/internal/models"
)

// CredentialFileName is the name of the sealed credential file in the data
// directory.
const CredentialFileName = "credential.json.enc"

// credentialAD binds the ciphertext to its purpose.
var credentialAD = []byte("qrpay/credential")

// CredentialStore persists the single Credential of the signed-in user.
// Operations never fail and are immediately visible to later reads in the
// same process.
type CredentialStore interface {
	Get() (models.Credential, bool)
	Set(models.Credential)
	Clear()
}

// MemoryStore is a process-local CredentialStore.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *models.Credential
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return models.Credential{}, false
	}
	return *s.cred, true
}

func (s *MemoryStore) Set(c models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &c
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}

// FileStore is a CredentialStore sealed with AES-GCM on disk. The in-memory
// copy is authoritative: disk failures are logged and never returned, and a
// file that cannot be opened reads as "no credential".
type FileStore struct {
	mu     sync.RWMutex
	path   string
	key    []byte
	cred   *models.Credential
	logger *slog.Logger
}

// OpenFileStore loads the credential at path, if any, using the sealing key.
// Only an invalid key is reported as an error.
func OpenFileStore(path string, key []byte, logger *slog.Logger) (*FileStore, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("open credential store: %w", crypto.ErrInvalidKeyLength)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &FileStore{path: path, key: key, logger: logger}
	cred, err := s.load()
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		logger.Warn("credential file unreadable, starting signed out", "path", path, "error", err)
	default:
		s.cred = cred
	}
	return s, nil
}

func (s *FileStore) Get() (models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return models.Credential{}, false
	}
	return *s.cred, true
}

func (s *FileStore) Set(c models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &c
	if err := s.write(c); err != nil {
		s.logger.Error("persist credential", "path", s.path, "error", err)
	}
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("remove credential", "path", s.path, "error", err)
	}
}

func (s *FileStore) load() (*models.Credential, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.DecryptAESGCM(s.key, blob, credentialAD)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	var c models.Credential
	if err := json.Unmarshal(plain, &c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &c, nil
}

// write replaces the file atomically so a crash never leaves half a blob.
func (s *FileStore) write(c models.Credential) error {
	plain, err := json.Marshal(c)
	if err != nil {
		return err
	}
	enc, err := crypto.EncryptAESGCM(s.key, plain, credentialAD)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, enc, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
