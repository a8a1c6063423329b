// Package wire implements the JSON naming convention spoken by the payment
// service. Exported Go identifiers map to snake_case keys and back by a single
// rule, so request and response types carry no struct tags:
//
//	QRData         <-> qr_data
//	SessionID      <-> session_id
//	UpiTxnID       <-> upi_txn_id
//	IdempotencyKey <-> idempotency_key
//
// The rule applies to every object key at every depth, including map keys.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/iancoleman/strcase"
)

// ErrTrailingData is returned by Unmarshal when the input holds more than one
// JSON value.
var ErrTrailingData = errors.New("wire: trailing data after JSON value")

// Marshal encodes v as JSON with every object key converted to snake_case.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rekey(tree, ToSnake))
}

// Unmarshal decodes snake_case JSON into v. Keys are converted to Go
// identifiers and then matched by encoding/json, which folds case, so
// "session_id" lands in a field named SessionID.
func Unmarshal(data []byte, v any) error {
	tree, err := decodeTree(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rekey(tree, ToCamel))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func decodeTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, ErrTrailingData
	}
	return tree, nil
}

func rekey(node any, convert func(string) string) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[convert(k)] = rekey(v, convert)
		}
		return out
	case []any:
		for i, v := range n {
			n[i] = rekey(v, convert)
		}
		return n
	default:
		return node
	}
}

// ToSnake converts a Go identifier to snake_case. Runs of capitals are treated
// as one word (initialisms), so "QRData" becomes "qr_data" and "UpiTxnID"
// becomes "upi_txn_id". Keys already in snake_case are returned unchanged.
func ToSnake(s string) string { return strcase.ToSnake(s) }

// ToCamel converts a snake_case key to an exported Go identifier with only the
// first letter of each word capitalised ("upi_txn_id" becomes "UpiTxnId").
func ToCamel(s string) string { return strcase.ToCamel(s) }
