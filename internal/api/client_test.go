package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/qrpay/internal/files"
	"github.com/harrylevesque/qrpay/internal/metrics"
	"github.com/harrylevesque/qrpay/internal/models"
)

func signedIn(token string) *files.MemoryStore {
	s := files.NewMemoryStore()
	s.Set(models.Credential{Token: token, UserID: "u1"})
	return s
}

type captured struct {
	path   string
	auth   string
	ctype  string
	fields map[string]any
}

// serve answers every request with status and body and records the last one.
func serve(t *testing.T, status int, body string) (*httptest.Server, *captured, *int32) {
	t.Helper()
	var got captured
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.ctype = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		got.fields = map[string]any{}
		_ = json.Unmarshal(raw, &got.fields)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &calls
}

func TestInitiatePayment_SendsBearerAndIdempotencyKey(t *testing.T) {
	srv, got, _ := serve(t, http.StatusOK,
		`{"session_id":"s1","merchant":{"name":"Shop","upi_id":"shop@upi"},"amount":12.5,"status":"pending"}`)
	c := NewClient(srv.URL+"/", signedIn("tok-1"))

	res, err := c.InitiatePayment(context.Background(), "upi://pay?pa=shop@upi", 12.5, "key-1")
	require.NoError(t, err)

	assert.Equal(t, "/api/payment/initiate", got.path)
	assert.Equal(t, "Bearer tok-1", got.auth)
	assert.Equal(t, "application/json", got.ctype)
	assert.Equal(t, map[string]any{
		"qr_data":         "upi://pay?pa=shop@upi",
		"amount":          12.5,
		"idempotency_key": "key-1",
	}, got.fields)

	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, "Shop", res.Merchant.Name)
	assert.Equal(t, "shop@upi", res.Merchant.UpiID)
	assert.Nil(t, res.Merchant.Category)
	assert.Equal(t, 12.5, res.Amount)
}

func TestExecutePayment_MapsProviderReference(t *testing.T) {
	srv, got, _ := serve(t, http.StatusOK,
		`{"transaction_id":"t1","status":"success","upi_txn_id":"UPI123","message":"Payment successful"}`)
	c := NewClient(srv.URL, signedIn("tok-1"))

	res, err := c.ExecutePayment(context.Background(), "s1", "1234")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"session_id": "s1", "pin": "1234"}, got.fields)
	assert.Equal(t, models.ExecutionResult{
		TransactionID:     "t1",
		Status:            "success",
		ProviderReference: "UPI123",
		Message:           "Payment successful",
	}, res)
}

func TestAuthorizedCalls_WithoutCredentialSendNothing(t *testing.T) {
	srv, _, calls := serve(t, http.StatusOK, `{}`)

	for _, creds := range []CredentialSource{nil, files.NewMemoryStore()} {
		c := NewClient(srv.URL, creds)
		_, err := c.InitiatePayment(context.Background(), "qr", 1, "k")
		assert.ErrorIs(t, err, Unauthenticated)
		_, err = c.ExecutePayment(context.Background(), "s1", "1234")
		assert.ErrorIs(t, err, Unauthenticated)
	}
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestAuthorizedCalls_ExpiredCredentialIsUnauthenticated(t *testing.T) {
	srv, _, calls := serve(t, http.StatusOK, `{}`)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := files.NewMemoryStore()
	store.Set(models.Credential{Token: "tok", ExpiresAt: now.Add(-time.Minute)})

	c := NewClient(srv.URL, store, WithClock(func() time.Time { return now }))
	_, err := c.InitiatePayment(context.Background(), "qr", 1, "k")
	assert.ErrorIs(t, err, Unauthenticated)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestLogin_NeedsNoCredential(t *testing.T) {
	srv, got, _ := serve(t, http.StatusOK,
		`{"token":"tok","user":{"id":"u1","name":"Asha","upi_id":"asha@upi","balance":100},"expires_in":3600}`)
	c := NewClient(srv.URL, nil)

	res, err := c.Login(context.Background(), "9999999999", "1234")
	require.NoError(t, err)
	assert.Empty(t, got.auth)
	assert.Equal(t, map[string]any{"phone_number": "9999999999", "pin": "1234"}, got.fields)
	assert.Equal(t, models.AuthResult{
		Token:     "tok",
		User:      models.User{ID: "u1", Name: "Asha", UpiID: "asha@upi", Balance: 100},
		ExpiresIn: 3600,
	}, res)
}

func TestRegister_SendsProfile(t *testing.T) {
	srv, got, _ := serve(t, http.StatusOK, `{"token":"tok","user":{"id":"u1","name":"Asha","upi_id":"asha@upi","balance":0}}`)
	c := NewClient(srv.URL, nil)

	_, err := c.Register(context.Background(), "9999999999", "asha@upi", "Asha", "1234")
	require.NoError(t, err)
	assert.Equal(t, "/auth/register", got.path)
	assert.Equal(t, map[string]any{
		"phone_number": "9999999999",
		"upi_id":       "asha@upi",
		"name":         "Asha",
		"pin":          "1234",
	}, got.fields)
}

func TestServerRejected_PreservesStatusAndMessage(t *testing.T) {
	srv, _, _ := serve(t, http.StatusBadRequest, `{"error":"Insufficient balance"}`)
	c := NewClient(srv.URL, signedIn("tok"))

	_, err := c.ExecutePayment(context.Background(), "s1", "1234")
	require.ErrorIs(t, err, ServerRejected)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "execute", apiErr.Op)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Insufficient balance", apiErr.Message)
	assert.JSONEq(t, `{"error":"Insufficient balance"}`, string(apiErr.Body))
	assert.True(t, IsDefinitive(err))
}

func TestServerRejected_NonJSONBodyKept(t *testing.T) {
	srv, _, _ := serve(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := NewClient(srv.URL, signedIn("tok"))

	_, err := c.InitiatePayment(context.Background(), "qr", 1, "k")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ServerRejected, apiErr.Kind)
	assert.Empty(t, apiErr.Message)
	assert.Equal(t, "<html>bad gateway</html>", string(apiErr.Body))
	assert.False(t, IsDefinitive(err))
}

func TestMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>`,
		"wrong type":      `{"session_id":42}`,
		"missing session": `{"status":"pending"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _, _ := serve(t, http.StatusOK, body)
			c := NewClient(srv.URL, signedIn("tok"))
			_, err := c.InitiatePayment(context.Background(), "qr", 1, "k")
			assert.ErrorIs(t, err, MalformedResponse)
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, signedIn("tok"))
	_, err := c.ExecutePayment(context.Background(), "s1", "1234")
	assert.ErrorIs(t, err, TransportFailure)
	assert.False(t, IsDefinitive(err))
}

func TestExactlyOneAttemptPerCall(t *testing.T) {
	srv, _, calls := serve(t, http.StatusServiceUnavailable, `{"error":"down"}`)
	c := NewClient(srv.URL, signedIn("tok"))

	_, err := c.InitiatePayment(context.Background(), "qr", 1, "k")
	assert.ErrorIs(t, err, ServerRejected)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestTokenSnapshottedPerCall(t *testing.T) {
	store := signedIn("old")
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store.Set(models.Credential{Token: "new"})
		seen = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"session_id":"s1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, store)
	_, err := c.InitiatePayment(context.Background(), "qr", 1, "k")
	require.NoError(t, err)
	assert.Equal(t, "Bearer old", seen)
}

func TestRequestsAreCounted(t *testing.T) {
	srv, _, _ := serve(t, http.StatusUnauthorized, `{"error":"Invalid credentials"}`)
	reg := prometheus.NewRegistry()
	c := NewClient(srv.URL, nil, WithMetrics(metrics.NewClient(reg)))

	_, err := c.Login(context.Background(), "1", "2")
	require.Error(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "qrpay_client_requests_total" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestErrorDefinitive(t *testing.T) {
	cases := map[int]bool{
		400: true, 401: true, 403: true, 404: true, 409: true, 422: true,
		408: false, 425: false, 429: false, 500: false, 502: false, 503: false,
	}
	for status, want := range cases {
		e := &Error{Kind: ServerRejected, StatusCode: status}
		assert.Equal(t, want, e.Definitive(), "status %d", status)
	}
	assert.False(t, (&Error{Kind: TransportFailure}).Definitive())
}

func TestKindOf(t *testing.T) {
	wrapped := errors.Join(errors.New("ctx"), &Error{Kind: TransportFailure})
	assert.Equal(t, TransportFailure, KindOf(wrapped))
	assert.Equal(t, InvalidRequest, KindOf(InvalidRequest))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
