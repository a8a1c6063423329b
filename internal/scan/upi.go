package scan

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ErrNotUPI is returned by ParseUPI for payloads that are not upi://pay links.
var ErrNotUPI = errors.New("scan: not a upi://pay payload")

// UPI is the merchant information carried by a upi://pay deep link.
type UPI struct {
	Payee     string  // pa
	PayeeName string  // pn
	Amount    float64 // am, zero when absent or unparseable
	Currency  string  // cu
	Note      string  // tn
}

// ParseUPI parses a payload such as
//
//	upi://pay?pa=shop@bank&pn=Shop&am=12.50&cu=INR
//
// The payment service resolves merchants from the raw payload, so this is
// only used for display and to pre-fill the amount.
func ParseUPI(code string) (UPI, error) {
	u, err := url.Parse(strings.TrimSpace(code))
	if err != nil {
		return UPI{}, ErrNotUPI
	}
	if !strings.EqualFold(u.Scheme, "upi") || !strings.EqualFold(u.Host, "pay") {
		return UPI{}, ErrNotUPI
	}
	q := u.Query()
	p := UPI{
		Payee:     q.Get("pa"),
		PayeeName: q.Get("pn"),
		Currency:  q.Get("cu"),
		Note:      q.Get("tn"),
	}
	if p.Payee == "" {
		return UPI{}, ErrNotUPI
	}
	if am, err := strconv.ParseFloat(q.Get("am"), 64); err == nil && am > 0 && !math.IsInf(am, 0) {
		p.Amount = am
	}
	return p, nil
}
