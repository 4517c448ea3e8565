// Package razorpay adapts the Razorpay API to payment.Gateway.
package razorpay

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	razorpaysdk "github.com/razorpay/razorpay-go"

	"github.com/xenking/storefront/internal/domain/payment"
)

// api is the subset of the Razorpay SDK the gateway calls.
type api interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FetchPayment(id string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error)
}

type sdk struct {
	client *razorpaysdk.Client
}

func (s sdk) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return s.client.Order.Create(data, nil)
}

func (s sdk) FetchPayment(id string) (map[string]interface{}, error) {
	return s.client.Payment.Fetch(id, nil, nil)
}

func (s sdk) Refund(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error) {
	return s.client.Payment.Refund(paymentID, amount, data, nil)
}

var _ payment.Gateway = (*Gateway)(nil)

// Gateway implements payment.Gateway on the Razorpay SDK.
type Gateway struct {
	api   api
	keyID string
}

// New creates a Gateway authenticated with the key pair.
func New(keyID, keySecret string) (*Gateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	return &Gateway{api: sdk{client: razorpaysdk.NewClient(keyID, keySecret)}, keyID: keyID}, nil
}

// CreateIntent opens a Razorpay order.
func (g *Gateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}
	res, err := call(ctx, func() (map[string]interface{}, error) { return g.api.CreateOrder(data) })
	if err != nil {
		return nil, errors.Wrap(err, "razorpay create order")
	}
	id := str(res, "id")
	if id == "" {
		return nil, errors.New("razorpay create order: response has no id")
	}
	return &payment.Intent{
		ID:       id,
		Amount:   num(res, "amount"),
		Currency: str(res, "currency"),
		Receipt:  str(res, "receipt"),
		Status:   str(res, "status"),
		KeyID:    g.keyID,
	}, nil
}

// FetchPayment returns the state of a payment.
func (g *Gateway) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	res, err := call(ctx, func() (map[string]interface{}, error) { return g.api.FetchPayment(paymentID) })
	if err != nil {
		return nil, errors.Wrapf(err, "razorpay fetch payment %s", paymentID)
	}
	return &payment.Payment{
		ID:      str(res, "id"),
		OrderID: str(res, "order_id"),
		Status:  str(res, "status"),
		Amount:  num(res, "amount"),
	}, nil
}

// Refund refunds amount minor units of a captured payment.
func (g *Gateway) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*payment.Refund, error) {
	data := map[string]interface{}{
		"amount": amount,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	res, err := call(ctx, func() (map[string]interface{}, error) { return g.api.Refund(paymentID, int(amount), data) })
	if err != nil {
		return nil, errors.Wrapf(err, "razorpay refund payment %s", paymentID)
	}
	return &payment.Refund{
		ID:     str(res, "id"),
		Status: str(res, "status"),
		Amount: num(res, "amount"),
	}, nil
}

type result struct {
	body map[string]interface{}
	err  error
}

// call runs a blocking SDK request and gives up when ctx is done. The SDK
// has no context support; an abandoned request finishes in the background.
func call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// num reads a JSON number, which the SDK decodes as float64.
func num(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
