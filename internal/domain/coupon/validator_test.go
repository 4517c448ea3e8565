package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon    *Coupon
	findErr   error
	usage     int
	usageErr  error
	marked    []Usage
	markErr   error
	foundCode string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.foundCode = code
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.coupon == nil {
		return nil, ErrNotFound
	}
	c := *m.coupon
	return &c, nil
}

func (m *mockCouponRepo) UserUsage(_ context.Context, _, _ string) (int, error) {
	return m.usage, m.usageErr
}

func (m *mockCouponRepo) MarkUsed(_ context.Context, u Usage) error {
	m.marked = append(m.marked, u)
	return m.markErr
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestService_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	base := func() *Coupon {
		return &Coupon{
			ID:              "c1",
			Code:            "SAVE10",
			OfferPercentage: d("10"),
			MinimumPrice:    d("500"),
			MaximumDiscount: d("150"),
			UsageLimit:      2,
			MaxGlobalUsage:  100,
			UsedCount:       3,
			ExpiresOn:       fixedNow.Add(24 * time.Hour),
			Active:          true,
		}
	}

	tests := []struct {
		name         string
		repo         *mockCouponRepo
		req          ValidateRequest
		wantDiscount string
		wantFinal    string
		wantErr      error
		wantMinimum  bool
	}{
		{
			name:         "valid coupon returns percentage discount",
			repo:         &mockCouponRepo{coupon: base()},
			req:          ValidateRequest{Code: "save10", CartTotal: d("1000"), UserID: "u1"},
			wantDiscount: "100",
			wantFinal:    "900",
		},
		{
			name:         "discount capped at maximum",
			repo:         &mockCouponRepo{coupon: base()},
			req:          ValidateRequest{Code: "SAVE10", CartTotal: d("5000"), UserID: "u1"},
			wantDiscount: "150",
			wantFinal:    "4850",
		},
		{
			name:    "missing code",
			repo:    &mockCouponRepo{coupon: base()},
			req:     ValidateRequest{CartTotal: d("1000"), UserID: "u1"},
			wantErr: ErrMissingInput,
		},
		{
			name:    "missing user",
			repo:    &mockCouponRepo{coupon: base()},
			req:     ValidateRequest{Code: "SAVE10", CartTotal: d("1000")},
			wantErr: ErrMissingInput,
		},
		{
			name:    "zero cart total",
			repo:    &mockCouponRepo{coupon: base()},
			req:     ValidateRequest{Code: "SAVE10", UserID: "u1"},
			wantErr: ErrMissingInput,
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{},
			req:     ValidateRequest{Code: "BOGUS", CartTotal: d("1000"), UserID: "u1"},
			wantErr: ErrNotFound,
		},
		{
			name: "expired",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := base()
				c.ExpiresOn = fixedNow.Add(-time.Minute)
				return c
			}()},
			req:     ValidateRequest{Code: "SAVE10", CartTotal: d("1000"), UserID: "u1"},
			wantErr: ErrExpired,
		},
		{
			name: "global cap exhausted",
			repo: &mockCouponRepo{coupon: func() *Coupon {
				c := base()
				c.UsedCount = 100
				return c
			}()},
			req:     ValidateRequest{Code: "SAVE10", CartTotal: d("1000"), UserID: "u1"},
			wantErr: ErrGlobalLimitReached,
		},
		{
			name:    "per-user cap exhausted",
			repo:    &mockCouponRepo{coupon: base(), usage: 2},
			req:     ValidateRequest{Code: "SAVE10", CartTotal: d("1000"), UserID: "u1"},
			wantErr: ErrUserLimitReached,
		},
		{
			name:        "below minimum purchase",
			repo:        &mockCouponRepo{coupon: base()},
			req:         ValidateRequest{Code: "SAVE10", CartTotal: d("499.99"), UserID: "u1"},
			wantMinimum: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.repo)
			s.now = func() time.Time { return fixedNow }

			got, err := s.Validate(context.Background(), tt.req)

			if tt.wantMinimum {
				var minErr *MinimumPurchaseError
				require.ErrorAs(t, err, &minErr)
				assert.True(t, d("500").Equal(minErr.Minimum))
				return
			}
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "c1", got.CouponID)
			assert.True(t, d(tt.wantDiscount).Equal(got.DiscountAmount), "discount %s", got.DiscountAmount)
			assert.True(t, d(tt.wantFinal).Equal(got.FinalAmount), "final %s", got.FinalAmount)
			assert.Empty(t, tt.repo.marked, "validate must not consume usage")
		})
	}
}

func TestService_ValidateUppercasesCode(t *testing.T) {
	repo := &mockCouponRepo{}
	s := NewService(repo)

	_, _ = s.Validate(context.Background(), ValidateRequest{Code: " save10 ", CartTotal: d("100"), UserID: "u1"})
	assert.Equal(t, "SAVE10", repo.foundCode)
}

func TestService_ValidateIsRepeatable(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		ID: "c1", Code: "X", OfferPercentage: d("5"), UsageLimit: 1, MaxGlobalUsage: 1,
		ExpiresOn: time.Now().Add(time.Hour), Active: true,
	}}
	s := NewService(repo)
	req := ValidateRequest{Code: "X", CartTotal: d("200"), UserID: "u1"}

	first, err := s.Validate(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestService_ValidateLookupError(t *testing.T) {
	s := NewService(&mockCouponRepo{findErr: errors.New("db down")})

	_, err := s.Validate(context.Background(), ValidateRequest{Code: "X", CartTotal: d("1"), UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestService_MarkUsed(t *testing.T) {
	repo := &mockCouponRepo{}
	s := NewService(repo)

	require.NoError(t, s.MarkUsed(context.Background(), "c1", "u1", 3))
	require.Len(t, repo.marked, 1)
	assert.Equal(t, Usage{CouponID: "c1", UserID: "u1", Limit: 3}, repo.marked[0])

	repo.markErr = ErrGlobalLimitReached
	err := s.MarkUsed(context.Background(), "c1", "u1", 3)
	require.ErrorIs(t, err, ErrGlobalLimitReached)
}

func TestDiscount(t *testing.T) {
	for _, tt := range []struct {
		name  string
		pct   string
		max   string
		total string
		want  string
	}{
		{name: "below cap", pct: "12.5", max: "200", total: "1000", want: "125"},
		{name: "at cap", pct: "50", max: "200", total: "1000", want: "200"},
		{name: "zero cap", pct: "10", max: "0", total: "1000", want: "0"},
		{name: "rounded to cents", pct: "33.333", max: "1000", total: "100", want: "33.33"},
		{name: "never above total", pct: "150", max: "1000", total: "100", want: "100"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := &Coupon{OfferPercentage: d(tt.pct), MaximumDiscount: d(tt.max)}
			got := Discount(c, d(tt.total))
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}
