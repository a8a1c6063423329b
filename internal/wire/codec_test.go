package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"QRData":         "qr_data",
		"SessionID":      "session_id",
		"UpiTxnID":       "upi_txn_id",
		"UpiID":          "upi_id",
		"IdempotencyKey": "idempotency_key",
		"PhoneNumber":    "phone_number",
		"PIN":            "pin",
		"ExpiresIn":      "expires_in",
		"ID":             "id",
		"error":          "error",
		"session_id":     "session_id",
		"MerchantUpiID":  "merchant_upi_id",
		"TokenTTL":       "token_ttl",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToSnake(in), "ToSnake(%q)", in)
	}
}

func TestToCamel_RoundTripsSnakeKeys(t *testing.T) {
	for _, key := range []string{"qr_data", "session_id", "upi_txn_id", "expires_in", "token", "merchant_upi_id"} {
		assert.Equal(t, key, ToSnake(ToCamel(key)), "round trip of %q", key)
	}
	assert.Equal(t, "UpiTxnId", ToCamel("upi_txn_id"))
}

type merchant struct {
	Name     string
	UpiID    string
	Category *string
}

type initResponse struct {
	SessionID string
	Merchant  merchant
	Amount    float64
	Status    string
}

func TestUnmarshal_MapsSnakeKeysOntoFields(t *testing.T) {
	body := []byte(`{"session_id":"s1","merchant":{"name":"Shop","upi_id":"shop@bank"},"amount":12.5,"status":"pending"}`)

	var got initResponse
	require.NoError(t, Unmarshal(body, &got))

	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "Shop", got.Merchant.Name)
	assert.Equal(t, "shop@bank", got.Merchant.UpiID)
	assert.Nil(t, got.Merchant.Category)
	assert.Equal(t, 12.5, got.Amount)
	assert.Equal(t, "pending", got.Status)
}

func TestMarshal_EmitsSnakeKeys(t *testing.T) {
	req := struct {
		QRData         string
		Amount         float64
		IdempotencyKey string
	}{QRData: "upi://pay?pa=shop@bank", Amount: 12.5, IdempotencyKey: "k-1"}

	out, err := Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"qr_data":"upi://pay?pa=shop@bank","amount":12.5,"idempotency_key":"k-1"}`, string(out))
}

func TestMarshal_NestedAndSlices(t *testing.T) {
	type entry struct{ TransactionID string }
	out, err := Marshal(struct{ Entries []entry }{Entries: []entry{{TransactionID: "t1"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":[{"transaction_id":"t1"}]}`, string(out))
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	var v initResponse
	assert.Error(t, Unmarshal([]byte(`<html>`), &v))
	assert.ErrorIs(t, Unmarshal([]byte(`{} {}`), &v), ErrTrailingData)
	assert.Error(t, Unmarshal([]byte(`{"amount":"twelve"}`), &v))
}
