package files

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrylevesque/qrpay/internal/models"
)

// ReceiptFileName is the receipt log inside the data directory.
const ReceiptFileName = "receipts.json"

// ReceiptStore keeps the local history of succeeded payments as a JSON array.
type ReceiptStore struct {
	filePath string
	mu       sync.RWMutex
}

// NewReceiptStore creates a ReceiptStore backed by the file at path.
func NewReceiptStore(path string) *ReceiptStore {
	return &ReceiptStore{filePath: path}
}

// Append records r, assigning an ID and timestamp when they are missing.
// Receipts for a transaction already on file are ignored.
func (s *ReceiptStore) Append(r models.Receipt) (models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipts, err := s.read()
	if err != nil {
		return r, err
	}
	for _, v := range receipts {
		if r.TransactionID != "" && v.TransactionID == r.TransactionID {
			return v, nil
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	receipts = append(receipts, r)

	data, err := json.MarshalIndent(receipts, "", "  ")
	if err != nil {
		return r, err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return r, err
	}
	return r, os.WriteFile(s.filePath, data, 0600)
}

// List returns every receipt in the order they were recorded.
func (s *ReceiptStore) List() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Clear removes the receipt log.
func (s *ReceiptStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *ReceiptStore) read() ([]models.Receipt, error) {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var receipts []models.Receipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}
