package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const storeKeyInfo = "qrpay-credential-store-v1"

// DeriveStoreKey derives the credential store sealing key from the master key
// and the device fingerprint using HKDF-SHA256. A file sealed on one device
// does not open on another that holds the same master key.
func DeriveStoreKey(master []byte, deviceFP string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	ikm := make([]byte, 0, len(master)+len(deviceFP))
	ikm = append(ikm, master...)
	ikm = append(ikm, deviceFP...)
	h := hkdf.New(sha256.New, ikm, nil, []byte(storeKeyInfo))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}
