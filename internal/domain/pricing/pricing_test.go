package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSalePrice(t *testing.T) {
	tests := []struct {
		name    string
		regular string
		percent string
		want    string
		wantErr error
	}{
		{name: "ten percent", regular: "1000", percent: "10", want: "900"},
		{name: "no discount", regular: "499.99", percent: "0", want: "499.99"},
		{name: "rounds to cents", regular: "99.99", percent: "33", want: "66.99"},
		{name: "full discount", regular: "10", percent: "100", want: "0"},
		{name: "negative price", regular: "-1", percent: "10", wantErr: ErrNegativePrice},
		{name: "percent above 100", regular: "10", percent: "101", wantErr: ErrInvalidPercent},
		{name: "negative percent", regular: "10", percent: "-5", wantErr: ErrInvalidPercent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SalePrice(d(tt.regular), d(tt.percent))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestBestDiscount(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	window := func(o Offer) Offer {
		o.StartDate = now.Add(-time.Hour)
		o.EndDate = now.Add(time.Hour)
		o.Active = true
		return o
	}

	tests := []struct {
		name     string
		offers   []Offer
		fallback string
		want     string
		wantErr  error
	}{
		{
			name:     "no offers falls back to stored percent",
			fallback: "10",
			want:     "10",
		},
		{
			name: "highest percentage wins",
			offers: []Offer{
				window(Offer{ID: "o1", Type: OfferPercentage, Value: d("15")}),
				window(Offer{ID: "o2", Type: OfferPercentage, Value: d("25")}),
				window(Offer{ID: "o3", Type: OfferPercentage, Value: d("5")}),
			},
			fallback: "10",
			want:     "25",
		},
		{
			name: "flat offer converted against regular price",
			offers: []Offer{
				window(Offer{ID: "o1", Type: OfferPercentage, Value: d("10")}),
				window(Offer{ID: "o2", Type: OfferFlat, Value: d("300")}),
			},
			want: "30",
		},
		{
			name: "inactive and expired offers are ignored",
			offers: []Offer{
				{ID: "o1", Type: OfferPercentage, Value: d("50"), Active: false, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)},
				{ID: "o2", Type: OfferPercentage, Value: d("40"), Active: true, StartDate: now.Add(-2 * time.Hour), EndDate: now.Add(-time.Hour)},
				{ID: "o3", Type: OfferPercentage, Value: d("30"), Active: true, StartDate: now.Add(time.Hour), EndDate: now.Add(2 * time.Hour)},
			},
			fallback: "5",
			want:     "5",
		},
		{
			name: "offer applicable lower than fallback still wins",
			offers: []Offer{
				window(Offer{ID: "o1", Type: OfferPercentage, Value: d("3")}),
			},
			fallback: "10",
			want:     "3",
		},
		{
			name: "malformed percentage offer",
			offers: []Offer{
				window(Offer{ID: "o1", Type: OfferPercentage, Value: d("120")}),
			},
			wantErr: ErrInvalidOffer,
		},
		{
			name: "negative flat offer",
			offers: []Offer{
				window(Offer{ID: "o1", Type: OfferFlat, Value: d("-1")}),
			},
			wantErr: ErrInvalidOffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := decimal.Zero
			if tt.fallback != "" {
				fallback = d(tt.fallback)
			}
			got, err := BestDiscount(d("1000"), fallback, tt.offers, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestOfferPercent_FlatCappedAtHundred(t *testing.T) {
	pct, err := OfferPercent(Offer{Type: OfferFlat, Value: d("5000")}, d("1000"))
	require.NoError(t, err)
	assert.True(t, d("100").Equal(pct))
}
