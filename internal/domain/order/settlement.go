package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wallet"
)

var (
	errMissingUser        = apperr.New(apperr.KindValidation, "user id is required")
	errGatewayUnavailable = apperr.New(apperr.KindValidation, "payment gateway is not configured")
	errAlreadyPaid        = apperr.New(apperr.KindConflict, "order is already paid")
	errPaymentMismatch    = apperr.New(apperr.KindValidation, "payment does not belong to this order")
)

// PlaceOrderRequest holds the input for checkout.
type PlaceOrderRequest struct {
	UserID            string
	ShippingAddressID string
	PaymentMethod     PaymentMethod
	CouponCode        string
}

// PlaceOrderResult is the created order plus the gateway intent the client
// pays against, when the gateway method was chosen.
type PlaceOrderResult struct {
	Order  *Order
	Intent *payment.Intent
}

// VerifyPaymentRequest carries the gateway checkout callback.
type VerifyPaymentRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type line struct {
	item    cart.Item
	product *product.Product
	unit    decimal.Decimal
}

// PlaceOrder turns the user's cart into an order.
//
// Pricing is re-derived from the live catalog and any coupon is re-validated
// against that total. The gateway intent is opened before anything is
// written. The order, stock decrements, coupon usage, wallet debit and cart
// reset are then committed as one unit. A size that sold out in the
// meantime, or a cart written since it was read here, fails the whole commit
// with a conflict.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("payment.method", string(req.PaymentMethod))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	switch {
	case req.UserID == "":
		return nil, errMissingUser
	case req.ShippingAddressID == "":
		return nil, ErrMissingAddress
	case !req.PaymentMethod.Valid():
		return nil, ErrInvalidMethod
	case req.PaymentMethod == MethodGateway && s.gateway == nil:
		return nil, errGatewayUnavailable
	}

	c, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	lines, original, err := s.priceLines(ctx, c)
	if err != nil {
		return nil, err
	}

	current := original
	var (
		applied *AppliedCoupon
		usage   *coupon.Usage
	)
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		res, err := s.coupons.Validate(ctx, coupon.ValidateRequest{
			Code:      code,
			CartTotal: original,
			UserID:    req.UserID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		current = res.FinalAmount
		applied = &AppliedCoupon{CouponID: res.CouponID, Code: res.Code, DiscountAmount: res.DiscountAmount}
		usage = &coupon.Usage{CouponID: res.CouponID, UserID: req.UserID, Limit: res.UsageLimit}
	}

	now := s.now()
	o := &Order{
		ID:                 uuid.New().String(),
		UserID:             req.UserID,
		ShippingAddressID:  req.ShippingAddressID,
		Items:              allocate(lines, original, current),
		PaymentMethod:      req.PaymentMethod,
		PaymentStatus:      PaymentPending,
		Status:             StatusPending,
		OriginalAmount:     original,
		InitialTotalAmount: original,
		CurrentAmount:      current,
		Coupon:             applied,
		TotalRefundAmount:  decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	settlement := Settlement{Order: o, CartVersion: c.Version, Coupon: usage}
	for _, l := range lines {
		settlement.Stock = append(settlement.Stock, product.StockDelta{
			ProductID: l.item.ProductID,
			Size:      l.item.Size,
			Quantity:  -l.item.Quantity,
		})
	}
	if req.PaymentMethod == MethodWallet {
		o.PaymentStatus = PaymentCompleted
		if current.IsPositive() {
			settlement.WalletDebit = &wallet.Entry{
				UserID:      req.UserID,
				Amount:      current,
				OrderID:     o.ID,
				Description: "Payment for order " + o.ID,
			}
		}
	}

	var intent *payment.Intent
	if req.PaymentMethod == MethodGateway {
		intent, err = s.createIntent(ctx, o)
		if err != nil {
			return nil, err
		}
		o.GatewayOrderID = intent.ID
	}

	if err := s.orders.Settle(ctx, settlement); err != nil {
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(apperr.KindOf(err)))))
		return nil, errors.Wrap(err, "settle order")
	}
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment.method", string(o.PaymentMethod))))

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.String("amount", o.CurrentAmount.StringFixed(2)),
	)
	s.notify(ctx, o.UserID, "Order confirmed",
		"<p>Your order "+o.ID+" for "+s.money(o.CurrentAmount)+" has been placed.</p>")

	return &PlaceOrderResult{Order: o, Intent: intent}, nil
}

// priceLines loads every product in the cart, refreshes its pricing and
// checks that it is still sold in the requested size and quantity. It
// returns the lines and their total at live sale prices.
func (s *Service) priceLines(ctx context.Context, c *cart.Cart) ([]line, decimal.Decimal, error) {
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	categories := make(map[string]*product.Category)
	refreshed := make(map[string]bool)
	lines := make([]line, 0, len(c.Items))
	total := decimal.Zero
	for _, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok || !p.Active {
			return nil, decimal.Zero, &product.InactiveError{ProductID: it.ProductID, Name: it.Name}
		}

		cat, seen := categories[p.CategoryID]
		if !seen {
			cat, err = s.products.GetCategory(ctx, p.CategoryID)
			if err != nil && !errors.Is(err, product.ErrCategoryNotFound) {
				return nil, decimal.Zero, errors.Wrap(err, "get category")
			}
			categories[p.CategoryID] = cat
		}
		if cat == nil || !cat.Active {
			return nil, decimal.Zero, &product.InactiveError{ProductID: p.ID, Name: p.Name, CategoryID: p.CategoryID}
		}

		if !refreshed[p.ID] {
			if err := s.pricer.Refresh(ctx, p, cat); err != nil {
				return nil, decimal.Zero, errors.Wrap(err, "refresh pricing")
			}
			refreshed[p.ID] = true
		}

		sz := p.FindSize(it.Size)
		if sz == nil {
			return nil, decimal.Zero, &product.UnknownSizeError{ProductID: p.ID, Size: it.Size}
		}
		if it.Quantity > sz.Quantity {
			return nil, decimal.Zero, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Size:      it.Size,
				Available: sz.Quantity,
				Requested: it.Quantity,
			}
		}

		lines = append(lines, line{item: it, product: p, unit: p.SalePrice})
		total = total.Add(p.SalePrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return lines, total.Round(2), nil
}

// allocate builds order items, spreading the difference between original
// and current over the lines in proportion to their value. Rounding
// leftovers land on the last line so that line totals sum to current.
func allocate(lines []line, original, current decimal.Decimal) []Item {
	items := make([]Item, 0, len(lines))
	allocated := decimal.Zero
	for i, l := range lines {
		qty := decimal.NewFromInt(int64(l.item.Quantity))
		gross := l.unit.Mul(qty)

		var total decimal.Decimal
		switch {
		case i == len(lines)-1:
			total = current.Sub(allocated)
		case original.IsZero():
			total = decimal.Zero
		default:
			total = gross.Mul(current).Div(original).Round(2)
		}
		if total.IsNegative() {
			total = decimal.Zero
		}
		allocated = allocated.Add(total)

		items = append(items, Item{
			ID:              uuid.New().String(),
			ProductID:       l.product.ID,
			Name:            l.product.Name,
			Size:            l.item.Size,
			Quantity:        l.item.Quantity,
			Price:           l.product.RegularPrice,
			DiscountedPrice: total.Div(qty).Round(2),
			Total:           total,
			CurrentPrice:    total,
			Status:          ItemPending,
			RefundAmount:    decimal.Zero,
		})
	}
	return items
}

func (s *Service) createIntent(ctx context.Context, o *Order) (*payment.Intent, error) {
	ctx, cancel := s.gatewayContext(ctx)
	defer cancel()

	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		Amount:   payment.MinorUnits(o.CurrentAmount),
		Currency: s.gwConfig.Currency,
		Receipt:  receiptID(o.ID),
		Notes: map[string]string{
			"order_id": o.ID,
			"user_id":  o.UserID,
		},
	})
	if err != nil {
		return nil, apperr.External(err, "create payment intent")
	}
	if intent.KeyID == "" {
		intent.KeyID = s.gwConfig.KeyID
	}
	return intent, nil
}

// receiptID derives a gateway receipt id that fits the 40 character limit.
func receiptID(orderID string) string {
	id := strings.ReplaceAll(orderID, "-", "")
	if len(id) > 32 {
		id = id[:32]
	}
	return "rcpt_" + id
}

// VerifyPayment confirms a gateway checkout. The callback signature must
// match and the gateway must report the payment as captured before the
// order's payment is marked completed. Repeating a successful verification
// returns the order unchanged.
func (s *Service) VerifyPayment(ctx context.Context, actor auth.Identity, req VerifyPaymentRequest) (*Order, error) {
	if s.gateway == nil {
		return nil, errGatewayUnavailable
	}
	if !payment.VerifySignature(s.gwConfig.Secret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		zctx.From(ctx).Warn("Payment signature mismatch", zap.String("gateway_order_id", req.GatewayOrderID))
		return nil, ErrInvalidSignature
	}

	o, err := s.orders.GetByGatewayOrderID(ctx, req.GatewayOrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order by gateway id")
	}
	if !actor.Owns(o.UserID) {
		return nil, ErrForbidden
	}
	if o.PaymentStatus == PaymentCompleted {
		if o.GatewayPaymentID == req.GatewayPaymentID {
			return o, nil
		}
		return nil, errAlreadyPaid
	}
	if !CanTransitionPayment(o.PaymentStatus, PaymentCompleted) {
		return nil, &TransitionError{Entity: "payment", From: string(o.PaymentStatus), To: string(PaymentCompleted)}
	}

	p, err := s.fetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if p.OrderID != "" && p.OrderID != req.GatewayOrderID {
		return nil, errPaymentMismatch
	}
	if p.Status != payment.StatusCaptured {
		return nil, ErrNotCaptured
	}

	o.PaymentStatus = PaymentCompleted
	o.GatewayPaymentID = req.GatewayPaymentID
	o.UpdatedAt = s.now()
	if err := s.save(ctx, o, Effects{}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Payment verified",
		zap.String("order_id", o.ID),
		zap.String("gateway_payment_id", o.GatewayPaymentID),
	)
	return o, nil
}

func (s *Service) fetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	ctx, cancel := s.gatewayContext(ctx)
	defer cancel()

	p, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, apperr.External(err, "fetch payment")
	}
	return p, nil
}
