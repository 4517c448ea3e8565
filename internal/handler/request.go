package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

const maxBodySize = 1 << 20

type decodable interface {
	Decode(d *jx.Decoder) error
}

// bind decodes the JSON body into v and validates its tags. An empty body
// decodes to the zero value.
func (h *Handler) bind(r *http.Request, v decodable) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperr.New(apperr.KindValidation, "cannot read request body")
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := v.Decode(jx.DecodeBytes(body)); err != nil {
			return apperr.Errorf(apperr.KindValidation, "invalid request body: %s", err)
		}
	}
	if err := h.validate.Struct(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return apperr.Errorf(apperr.KindValidation, "%s failed on %q", f.Field(), f.Tag())
		}
		return errors.Wrap(err, "validate request")
	}
	return nil
}

// queryInt reads a positive integer query parameter, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Errorf(apperr.KindValidation, "%s must be a positive integer", name)
	}
	return n, nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.New("expected a number")
	}
}

type addItemRequest struct {
	ProductID string `validate:"required"`
	Size      string `validate:"required"`
	Quantity  int    `validate:"required"`
}

func (v *addItemRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "productId":
			v.ProductID, err = d.Str()
		case "size":
			v.Size, err = d.Str()
		case "quantity":
			v.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

type updateItemRequest struct {
	Size     string
	Quantity int `validate:"required"`
}

func (v *updateItemRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "size":
			v.Size, err = d.Str()
		case "quantity":
			v.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

type couponRequest struct {
	Code string `validate:"required,max=64"`
	// CartTotal is optional for apply, which prices the current cart.
	CartTotal decimal.Decimal
}

func (v *couponRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "code":
			v.Code, err = d.Str()
		case "cartTotal":
			v.CartTotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

type placeOrderRequest struct {
	ShippingAddressID string `validate:"required"`
	PaymentMethod     string `validate:"required"`
	CouponCode        string `validate:"max=64"`
}

func (v *placeOrderRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "shippingAddressId":
			v.ShippingAddressID, err = d.Str()
		case "paymentMethod":
			v.PaymentMethod, err = d.Str()
		case "couponCode":
			v.CouponCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type reasonRequest struct {
	Reason string `validate:"max=500"`
}

func (v *reasonRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "reason":
			v.Reason, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// returnRequest requires a reason, unlike cancellations.
type returnRequest struct {
	Reason string `validate:"required,max=500"`
}

func (v *returnRequest) Decode(d *jx.Decoder) error {
	return (*reasonRequest)(v).Decode(d)
}

type verifyPaymentRequest struct {
	OrderID   string `validate:"required"`
	PaymentID string `validate:"required"`
	Signature string `validate:"required,hexadecimal"`
}

func (v *verifyPaymentRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "razorpay_order_id", "orderId":
			v.OrderID, err = d.Str()
		case "razorpay_payment_id", "paymentId":
			v.PaymentID, err = d.Str()
		case "razorpay_signature", "signature":
			v.Signature, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type walletEntryRequest struct {
	Amount      decimal.Decimal
	OrderID     string
	Description string `validate:"max=255"`
}

func (v *walletEntryRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "amount":
			v.Amount, err = decodeDecimal(d)
		case "orderId":
			v.OrderID, err = d.Str()
		case "description":
			v.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type statusRequest struct {
	Status string `validate:"required,oneof=Pending Processing Shipped Delivered Cancelled"`
}

func (v *statusRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "status":
			v.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type approveReturnRequest struct {
	Approved    bool
	Destination string `validate:"omitempty,oneof=wallet gateway"`
}

func (v *approveReturnRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "approved":
			v.Approved, err = d.Bool()
		case "destination":
			v.Destination, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}
