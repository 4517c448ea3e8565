// Package order settles carts into orders and runs the post-purchase
// workflow: status changes, cancellation, returns and refunds.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/notify"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/order"

// GatewayConfig configures the payment gateway integration.
type GatewayConfig struct {
	Currency string
	KeyID    string
	// Secret signs checkout callbacks.
	Secret  string
	Timeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithGateway enables the gateway payment method.
func WithGateway(gw payment.Gateway, cfg GatewayConfig) Option {
	return func(s *Service) {
		s.gateway = gw
		s.gwConfig = cfg
	}
}

// WithNotifier sets the customer notification sender.
func WithNotifier(n notify.Sender) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements order settlement and the order workflow.
type Service struct {
	orders   Repository
	carts    cart.Repository
	products product.Repository
	pricer   cart.Pricer
	coupons  coupon.Validator

	gateway  payment.Gateway
	gwConfig GatewayConfig
	notifier notify.Sender
	now      func() time.Time

	tracer  trace.Tracer
	meter   metric.Meter
	placed  metric.Int64Counter
	failed  metric.Int64Counter
	refunds metric.Float64Counter
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	carts cart.Repository,
	products product.Repository,
	pricer cart.Pricer,
	coupons coupon.Validator,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		orders:   orders,
		carts:    carts,
		products: products,
		pricer:   pricer,
		coupons:  coupons,
		notifier: notify.Discard{},
		now:      time.Now,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}
	if s.gwConfig.Currency == "" {
		s.gwConfig.Currency = "INR"
	}
	if s.gwConfig.Timeout <= 0 {
		s.gwConfig.Timeout = 10 * time.Second
	}

	var err error
	if s.placed, err = s.meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders settled successfully"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if s.failed, err = s.meter.Int64Counter("storefront.orders.settle_failed",
		metric.WithDescription("Settlement attempts rejected at commit"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.settle_failed counter")
	}
	if s.refunds, err = s.meter.Float64Counter("storefront.refunds.amount",
		metric.WithDescription("Money returned to customers"),
	); err != nil {
		return nil, errors.Wrap(err, "refunds.amount counter")
	}
	return s, nil
}

// Page is a page of a user's orders.
type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// Get returns an order visible to actor.
func (s *Service) Get(ctx context.Context, actor auth.Identity, orderID string) (*Order, error) {
	return s.load(ctx, actor, orderID)
}

// List returns the user's orders newest first.
func (s *Service) List(ctx context.Context, userID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	orders, total, err := s.orders.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

// UpdateStatus moves an order along its lifecycle. Live items follow the
// order. Delivering a cash on delivery order completes its payment.
// Moving to Cancelled runs the full cancellation.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Identity, orderID string, to Status) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if !to.Valid() {
		return nil, &TransitionError{Entity: "order", From: "", To: string(to)}
	}
	o, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if to == StatusCancelled {
		if err := s.cancel(ctx, o, "cancelled by admin"); err != nil {
			return nil, err
		}
		return o, nil
	}
	if err := checkTransition(o.Status, to); err != nil {
		return nil, err
	}

	target := ItemStatus(to)
	for i := range o.Items {
		if CanTransitionItem(o.Items[i].Status, target) {
			o.Items[i].Status = target
		}
	}
	o.Status = to
	if to == StatusDelivered && o.PaymentMethod.SettledOnDelivery() && o.PaymentStatus == PaymentPending {
		o.PaymentStatus = PaymentCompleted
	}
	o.UpdatedAt = s.now()

	if err := s.save(ctx, o, Effects{}); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(to)),
	)
	return o, nil
}

func (s *Service) load(ctx context.Context, actor auth.Identity, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !actor.Owns(o.UserID) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *Service) save(ctx context.Context, o *Order, fx Effects) error {
	if err := s.orders.Save(ctx, o, fx); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ErrVersionConflict
		}
		return errors.Wrapf(err, "save order %s", o.ID)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID, subject, body string) {
	if err := s.notifier.Send(ctx, notify.Message{To: userID, Subject: subject, HTML: body}); err != nil {
		zctx.From(ctx).Warn("Notification failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.gwConfig.Timeout)
}

func (s *Service) money(d decimal.Decimal) string {
	return fmt.Sprintf("%s %s", d.StringFixed(2), s.gwConfig.Currency)
}
