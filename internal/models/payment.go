package models

import "time"

// Merchant is the payee resolved by the service from a QR payload.
type Merchant struct {
	Name     string
	UpiID    string
	Category *string
}

// PaymentInitResult is the decoded body of a successful initiate call.
type PaymentInitResult struct {
	SessionID string
	Merchant  Merchant
	Amount    float64
	Status    string
}

// ExecutionResult is the terminal outcome of an execute call. It is never
// modified after it is received.
type ExecutionResult struct {
	TransactionID     string
	Status            string
	ProviderReference string
	Message           string
}

// Receipt is the local record of a succeeded payment.
type Receipt struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	TransactionID     string    `json:"transaction_id"`
	MerchantName      string    `json:"merchant_name"`
	MerchantUpiHandle string    `json:"merchant_upi_handle"`
	Amount            float64   `json:"amount"`
	Status            string    `json:"status"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
