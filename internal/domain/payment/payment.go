// Package payment defines the port to the external payment gateway.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

// Payment states reported by the gateway.
const (
	StatusCaptured   = "captured"
	StatusAuthorized = "authorized"
	StatusFailed     = "failed"
	StatusProcessed  = "processed"
)

// IntentRequest asks the gateway to open a payment for an amount in minor units.
type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Intent is the gateway-side order the client pays against.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	KeyID    string `json:"key_id,omitempty"`
}

// Payment is the gateway's view of a payment attempt.
type Payment struct {
	ID      string
	OrderID string
	Status  string
	Amount  int64
}

// Refund is the gateway's acknowledgement of a refund request.
type Refund struct {
	ID     string
	Status string
	Amount int64
}

// Gateway is an external payment provider. Implementations must honour ctx
// deadlines; callers do not retry.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error)
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts an amount to the smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Sign computes the hex HMAC-SHA256 of "orderID|paymentID" under secret.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches Sign in constant time.
// An empty secret never verifies.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
