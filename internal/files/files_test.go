package files

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/qrpay/internal/crypto"
	"github.com/harrylevesque/qrpay/internal/models"
)

func testCredential() models.Credential {
	return models.Credential{
		Token:       "tok-1",
		UserID:      "u-1",
		DisplayName: "Asha",
		UpiHandle:   "asha@upi",
		Balance:     250,
		ExpiresAt:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_GetSetClear(t *testing.T) {
	s := NewMemoryStore()
	_, ok := s.Get()
	assert.False(t, ok)

	s.Set(testCredential())
	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, testCredential(), got)

	s.Clear()
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CredentialFileName)
	key, _ := crypto.NewKey()

	s, err := OpenFileStore(path, key, nil)
	require.NoError(t, err)
	s.Set(testCredential())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := OpenFileStore(path, key, nil)
	require.NoError(t, err)
	got, ok := reopened.Get()
	require.True(t, ok)
	assert.Equal(t, testCredential(), got)

	reopened.Clear()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, ok = reopened.Get()
	assert.False(t, ok)
}

func TestFileStore_FileIsSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), CredentialFileName)
	key, _ := crypto.NewKey()
	s, err := OpenFileStore(path, key, nil)
	require.NoError(t, err)
	s.Set(testCredential())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok-1")
}

func TestFileStore_TamperedOrForeignFileReadsAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), CredentialFileName)
	key, _ := crypto.NewKey()
	s, err := OpenFileStore(path, key, nil)
	require.NoError(t, err)
	s.Set(testCredential())

	otherKey, _ := crypto.NewKey()
	foreign, err := OpenFileStore(path, otherKey, nil)
	require.NoError(t, err)
	_, ok := foreign.Get()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	tampered, err := OpenFileStore(path, key, nil)
	require.NoError(t, err)
	_, ok = tampered.Get()
	assert.False(t, ok)
}

func TestFileStore_WriteFailureKeepsMemoryCopy(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	key, _ := crypto.NewKey()

	s, err := OpenFileStore(filepath.Join(blocker, CredentialFileName), key, nil)
	require.NoError(t, err)
	s.Set(testCredential())

	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "tok-1", got.Token)
}

func TestOpenFileStore_RejectsBadKey(t *testing.T) {
	_, err := OpenFileStore(filepath.Join(t.TempDir(), "c"), []byte("short"), nil)
	assert.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
}

func TestMasterKey_CreateReadAndRefuseOverwrite(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	dir := t.TempDir()

	_, err := ReadMasterKey(dir)
	assert.ErrorIs(t, err, ErrMasterKeyNotFound)

	created, err := CreateMasterKey(dir)
	require.NoError(t, err)
	read, err := ReadMasterKey(dir)
	require.NoError(t, err)
	assert.Equal(t, created, read)

	_, err = CreateMasterKey(dir)
	assert.ErrorIs(t, err, ErrMasterKeyExists)

	again, err := LoadOrCreateMasterKey(dir)
	require.NoError(t, err)
	assert.Equal(t, created, again)
}

func TestMasterKey_EnvOverride(t *testing.T) {
	key, _ := crypto.NewKey()
	t.Setenv(MasterKeyEnv, hex.EncodeToString(key))

	got, err := ReadMasterKey(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, key, got)

	t.Setenv(MasterKeyEnv, "abcd")
	_, err = ReadMasterKey(t.TempDir())
	assert.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
}

func TestReceiptStore_AppendListDedup(t *testing.T) {
	s := NewReceiptStore(filepath.Join(t.TempDir(), ReceiptFileName))

	empty, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, empty)

	first, err := s.Append(models.Receipt{TransactionID: "t1", MerchantName: "Shop", Amount: 12.5, Status: "success"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	dup, err := s.Append(models.Receipt{TransactionID: "t1", MerchantName: "Other"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, dup.ID)

	_, err = s.Append(models.Receipt{TransactionID: "t2"})
	require.NoError(t, err)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Shop", all[0].MerchantName)
	assert.Equal(t, "t2", all[1].TransactionID)

	require.NoError(t, s.Clear())
	all, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}
