package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wallet"
)

var (
	errNotReturnPending = apperr.New(apperr.KindValidation, "item has no pending return")
	errNoPendingRefund  = apperr.New(apperr.KindValidation, "item has no pending gateway refund")
	errInvalidDest      = apperr.New(apperr.KindValidation, "unknown refund destination")
)

// ApproveReturnRequest decides a pending return.
type ApproveReturnRequest struct {
	OrderID  string
	ItemID   string
	Approved bool
	// Destination defaults to the wallet.
	Destination RefundDestination
}

// CancelOrder cancels every live item, restores their stock and zeroes the
// payable amount. A completed payment is credited back to the wallet in the
// same commit.
func (s *Service) CancelOrder(ctx context.Context, actor auth.Identity, orderID, reason string) (*Order, error) {
	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, o, reason); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) cancel(ctx context.Context, o *Order, reason string) error {
	if err := checkTransition(o.Status, StatusCancelled); err != nil {
		return err
	}

	now := s.now()
	var fx Effects
	for i := range o.Items {
		it := &o.Items[i]
		if it.Status == ItemCancelled {
			continue
		}
		fx.Restock = append(fx.Restock, product.StockDelta{
			ProductID: it.ProductID,
			Size:      it.Size,
			Quantity:  it.Quantity,
		})
		it.Status = ItemCancelled
		it.CancelReason = reason
		it.CancelledAt = &now
		it.CurrentPrice = decimal.Zero
	}

	refund := o.CurrentAmount
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.CurrentAmount = decimal.Zero
	o.UpdatedAt = now
	switch o.PaymentStatus {
	case PaymentCompleted:
		if refund.IsPositive() {
			fx.WalletCredit = s.refundToWallet(o, "", refund, "Refund for cancelled order "+o.ID)
		}
		o.PaymentStatus = PaymentRefunded
	case PaymentPending:
		o.PaymentStatus = PaymentFailed
	}

	if err := s.save(ctx, o, fx); err != nil {
		return err
	}
	s.recordRefund(ctx, fx.WalletCredit)

	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", o.ID),
		zap.String("reason", reason),
	)
	s.notify(ctx, o.UserID, "Order cancelled", "<p>Your order "+o.ID+" has been cancelled.</p>")
	return nil
}

// CancelItem cancels one live item, restores its stock and reduces the
// payable amount by the item's total. Cancelling the last live item cancels
// the order.
func (s *Service) CancelItem(ctx context.Context, actor auth.Identity, orderID, itemID, reason string) (*Order, error) {
	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	idx := o.FindItem(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	it := &o.Items[idx]
	if err := checkItemTransition(it.Status, ItemCancelled); err != nil {
		return nil, err
	}

	now := s.now()
	amount := it.CurrentPrice
	fx := Effects{Restock: []product.StockDelta{{
		ProductID: it.ProductID,
		Size:      it.Size,
		Quantity:  it.Quantity,
	}}}
	it.Status = ItemCancelled
	it.CancelReason = reason
	it.CancelledAt = &now
	it.CurrentPrice = decimal.Zero

	o.CurrentAmount = o.CurrentAmount.Sub(amount)
	if o.CurrentAmount.IsNegative() {
		o.CurrentAmount = decimal.Zero
	}
	o.UpdatedAt = now
	if o.PaymentStatus == PaymentCompleted && amount.IsPositive() {
		fx.WalletCredit = s.refundToWallet(o, it.ID, amount, "Refund for cancelled item "+it.Name)
	}

	if allCancelled(o.Items) {
		o.Status = StatusCancelled
		o.CancelReason = reason
		o.CurrentAmount = decimal.Zero
		switch o.PaymentStatus {
		case PaymentCompleted:
			o.PaymentStatus = PaymentRefunded
		case PaymentPending:
			o.PaymentStatus = PaymentFailed
		}
	}

	if err := s.save(ctx, o, fx); err != nil {
		return nil, err
	}
	s.recordRefund(ctx, fx.WalletCredit)

	zctx.From(ctx).Info("Order item cancelled",
		zap.String("order_id", o.ID),
		zap.String("item_id", itemID),
		zap.Bool("order_cancelled", o.Status == StatusCancelled),
	)
	return o, nil
}

// RequestReturn marks a delivered item as awaiting return approval.
func (s *Service) RequestReturn(ctx context.Context, actor auth.Identity, orderID, itemID, reason string) (*Order, error) {
	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	idx := o.FindItem(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	it := &o.Items[idx]
	if err := checkItemTransition(it.Status, ItemReturnPending); err != nil {
		return nil, err
	}

	now := s.now()
	it.Status = ItemReturnPending
	it.ReturnReason = reason
	it.ReturnRequestedAt = &now
	it.RefundStatus = ""
	o.UpdatedAt = now

	if err := s.save(ctx, o, Effects{}); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Return requested",
		zap.String("order_id", o.ID),
		zap.String("item_id", itemID),
	)
	return o, nil
}

// ApproveReturn decides a pending return. An approved wallet return credits
// the item's total to the wallet and restocks it in one commit; nothing
// changes if that commit fails. An approved gateway return restocks the item
// and leaves the refund pending for ProcessRefund. Only a completed payment is
// refunded: for an unpaid order the item is restocked and dropped from the
// payable amount. A rejected return puts the item back to Delivered.
func (s *Service) ApproveReturn(ctx context.Context, actor auth.Identity, req ApproveReturnRequest) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	dest := req.Destination
	if dest == "" {
		dest = RefundToWallet
	}
	if dest != RefundToWallet && dest != RefundToGateway {
		return nil, errInvalidDest
	}

	o, err := s.load(ctx, actor, req.OrderID)
	if err != nil {
		return nil, err
	}
	idx := o.FindItem(req.ItemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	it := &o.Items[idx]
	if it.Status != ItemReturnPending {
		return nil, errNotReturnPending
	}

	now := s.now()
	o.UpdatedAt = now
	if !req.Approved {
		it.Status = ItemDelivered
		it.RefundStatus = RefundFailed
		if err := s.save(ctx, o, Effects{}); err != nil {
			return nil, err
		}
		zctx.From(ctx).Info("Return rejected", zap.String("order_id", o.ID), zap.String("item_id", it.ID))
		return o, nil
	}

	if o.PaymentStatus != PaymentCompleted {
		return s.returnUnpaid(ctx, o, it)
	}
	if dest == RefundToGateway && o.GatewayPaymentID == "" {
		return nil, ErrNoGatewayPayment
	}

	amount := it.Total
	fx := Effects{Restock: []product.StockDelta{{
		ProductID: it.ProductID,
		Size:      it.Size,
		Quantity:  it.Quantity,
	}}}
	it.Status = ItemReturned
	it.RefundAmount = amount

	switch dest {
	case RefundToWallet:
		fx.WalletCredit = s.refundToWallet(o, it.ID, amount, "Refund for returned item "+it.Name)
		it.RefundStatus = RefundProcessed
		it.RefundedAt = &now
		s.settleRefund(o, amount)
	case RefundToGateway:
		it.RefundStatus = RefundPending
		o.Refunds = append(o.Refunds, Refund{
			ID:          uuid.New().String(),
			ItemID:      it.ID,
			Amount:      amount,
			Destination: RefundToGateway,
			Status:      RefundPending,
			CreatedAt:   now,
		})
	}

	if err := s.save(ctx, o, fx); err != nil {
		return nil, err
	}
	s.recordRefund(ctx, fx.WalletCredit)

	zctx.From(ctx).Info("Return approved",
		zap.String("order_id", o.ID),
		zap.String("item_id", it.ID),
		zap.String("destination", string(dest)),
		zap.String("amount", amount.StringFixed(2)),
	)
	s.notify(ctx, o.UserID, "Return approved",
		"<p>Your return of "+it.Name+" was approved. Refund: "+s.money(amount)+".</p>")
	return o, nil
}

// returnUnpaid accepts a return on an order whose payment was never
// collected. Nothing is credited.
func (s *Service) returnUnpaid(ctx context.Context, o *Order, it *Item) (*Order, error) {
	fx := Effects{Restock: []product.StockDelta{{
		ProductID: it.ProductID,
		Size:      it.Size,
		Quantity:  it.Quantity,
	}}}
	it.Status = ItemReturned
	it.RefundAmount = decimal.Zero
	o.CurrentAmount = o.CurrentAmount.Sub(it.Total)
	if o.CurrentAmount.IsNegative() {
		o.CurrentAmount = decimal.Zero
	}

	if err := s.save(ctx, o, fx); err != nil {
		return nil, err
	}
	zctx.From(ctx).Warn("Return approved without refund",
		zap.String("order_id", o.ID),
		zap.String("item_id", it.ID),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return o, nil
}

// ProcessRefund sends a pending return refund to the payment gateway. On
// success the refund is marked processed and the order's refund total is
// recomputed from the processed history. On failure the refund is marked
// failed and no money moves.
func (s *Service) ProcessRefund(ctx context.Context, actor auth.Identity, orderID, itemID string) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if s.gateway == nil {
		return nil, errGatewayUnavailable
	}
	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	idx := o.FindItem(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	it := &o.Items[idx]
	if it.Status != ItemReturned || it.RefundStatus != RefundPending {
		return nil, errNoPendingRefund
	}
	entry := -1
	for i := range o.Refunds {
		r := o.Refunds[i]
		if r.ItemID == it.ID && r.Destination == RefundToGateway && r.Status == RefundPending {
			entry = i
		}
	}
	if entry < 0 {
		return nil, errNoPendingRefund
	}

	gctx, cancel := s.gatewayContext(ctx)
	res, gwErr := s.gateway.Refund(gctx, o.GatewayPaymentID, payment.MinorUnits(it.RefundAmount), map[string]string{
		"order_id": o.ID,
		"item_id":  it.ID,
	})
	cancel()

	now := s.now()
	o.UpdatedAt = now
	if gwErr != nil {
		lg := zctx.From(ctx).With(
			zap.String("order_id", o.ID),
			zap.String("item_id", it.ID),
			zap.String("gateway_payment_id", o.GatewayPaymentID),
			zap.Int64("amount_minor", payment.MinorUnits(it.RefundAmount)),
		)
		if errors.Is(gwErr, context.DeadlineExceeded) {
			// The abandoned gateway request may still complete.
			lg.Error("Gateway refund timed out and may be in flight, reconcile manually",
				zap.Bool("reconcile", true),
				zap.Error(gwErr),
			)
		} else {
			lg.Warn("Gateway refund failed", zap.Error(gwErr))
		}

		it.RefundStatus = RefundFailed
		o.Refunds[entry].Status = RefundFailed
		if err := s.save(ctx, o, Effects{}); err != nil {
			return nil, errors.Wrap(err, "record failed refund")
		}
		return nil, apperr.External(gwErr, "refund payment")
	}

	it.RefundStatus = RefundProcessed
	it.RefundedAt = &now
	o.Refunds[entry].Status = RefundProcessed
	o.Refunds[entry].GatewayRefundID = res.ID
	o.Refunds[entry].ProcessedAt = &now
	o.TotalRefundAmount = o.ProcessedRefundTotal()
	s.settleRefund(o, it.RefundAmount)

	if err := s.save(ctx, o, Effects{}); err != nil {
		// The gateway has already moved the money.
		zctx.From(ctx).Error("Refund processed but order not updated",
			zap.String("order_id", o.ID),
			zap.String("gateway_refund_id", res.ID),
			zap.Error(err),
		)
		return nil, err
	}
	s.refunds.Add(ctx, it.RefundAmount.InexactFloat64(), metric.WithAttributes(attribute.String("destination", string(RefundToGateway))))

	zctx.From(ctx).Info("Gateway refund processed",
		zap.String("order_id", o.ID),
		zap.String("item_id", it.ID),
		zap.String("gateway_refund_id", res.ID),
	)
	return o, nil
}

// refundToWallet appends a processed wallet refund to the history and
// returns the matching credit entry.
func (s *Service) refundToWallet(o *Order, itemID string, amount decimal.Decimal, description string) *wallet.Entry {
	now := s.now()
	o.Refunds = append(o.Refunds, Refund{
		ID:          uuid.New().String(),
		ItemID:      itemID,
		Amount:      amount,
		Destination: RefundToWallet,
		Status:      RefundProcessed,
		CreatedAt:   now,
		ProcessedAt: &now,
	})
	o.TotalRefundAmount = o.ProcessedRefundTotal()
	return &wallet.Entry{
		UserID:      o.UserID,
		Amount:      amount,
		OrderID:     o.ID,
		Description: description,
	}
}

// settleRefund reduces the payable amount after a refund.
func (s *Service) settleRefund(o *Order, amount decimal.Decimal) {
	o.CurrentAmount = o.CurrentAmount.Sub(amount)
	if o.CurrentAmount.IsNegative() {
		o.CurrentAmount = decimal.Zero
	}
	if o.CurrentAmount.IsZero() && o.PaymentStatus == PaymentCompleted {
		o.PaymentStatus = PaymentRefunded
	}
}

func (s *Service) recordRefund(ctx context.Context, credit *wallet.Entry) {
	if credit == nil {
		return
	}
	s.refunds.Add(ctx, credit.Amount.InexactFloat64(), metric.WithAttributes(attribute.String("destination", string(RefundToWallet))))
}

func allCancelled(items []Item) bool {
	for _, it := range items {
		if it.Status != ItemCancelled {
			return false
		}
	}
	return true
}
