package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
)

type catalogJSON struct {
	Categories []struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		OfferIDs []string `json:"offerIds"`
	} `json:"categories"`
	Products []struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		CategoryID   string          `json:"categoryId"`
		RegularPrice decimal.Decimal `json:"regularPrice"`
		Discount     decimal.Decimal `json:"discountPercent"`
		OfferIDs     []string        `json:"offerIds"`
		Sizes        map[string]int  `json:"sizes"`
	} `json:"products"`
	Offers []struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Type       string          `json:"type"`
		Value      decimal.Decimal `json:"value"`
		Days       int             `json:"days"`
		TargetID   string          `json:"targetId"`
		TargetType string          `json:"targetType"`
	} `json:"offers"`
	Coupons []struct {
		ID              string          `json:"id"`
		Code            string          `json:"code"`
		OfferPercentage decimal.Decimal `json:"offerPercentage"`
		MinimumPrice    decimal.Decimal `json:"minimumPrice"`
		MaximumDiscount decimal.Decimal `json:"maximumDiscount"`
		UsageLimit      int             `json:"usageLimit"`
		MaxGlobalUsage  int             `json:"maxGlobalUsage"`
		Days            int             `json:"days"`
	} `json:"coupons"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or KART_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	now := time.Now()
	products := repository.NewProductRepository(pool)
	offers := repository.NewOfferRepository(pool)

	// Offers first so that product pricing below can see them.
	for _, o := range catalog.Offers {
		if err := offers.Upsert(ctx, pricing.Offer{
			ID:         o.ID,
			Name:       o.Name,
			Type:       pricing.OfferType(o.Type),
			Value:      o.Value,
			StartDate:  now.Add(-time.Hour),
			EndDate:    now.AddDate(0, 0, o.Days),
			TargetID:   o.TargetID,
			TargetType: pricing.TargetType(o.TargetType),
			Active:     true,
		}); err != nil {
			return err
		}
	}
	slog.Info("upserted offers", slog.Int("count", len(catalog.Offers)))

	for _, c := range catalog.Categories {
		if err := products.UpsertCategory(ctx, product.Category{
			ID: c.ID, Name: c.Name, Active: true, OfferIDs: c.OfferIDs,
		}); err != nil {
			return err
		}
	}
	slog.Info("upserted categories", slog.Int("count", len(catalog.Categories)))

	for _, p := range catalog.Products {
		sale, err := pricing.SalePrice(p.RegularPrice, p.Discount)
		if err != nil {
			return errors.Wrapf(err, "price product %s", p.ID)
		}
		prod := product.Product{
			ID:                p.ID,
			Name:              p.Name,
			CategoryID:        p.CategoryID,
			RegularPrice:      p.RegularPrice,
			DiscountPercent:   p.Discount,
			EffectiveDiscount: p.Discount,
			SalePrice:         sale,
			Active:            true,
			OfferIDs:          p.OfferIDs,
		}
		for size, qty := range p.Sizes {
			prod.Sizes = append(prod.Sizes, product.Size{Size: size, Quantity: qty, InStock: qty > 0})
		}
		if err := products.UpsertProduct(ctx, prod); err != nil {
			return err
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	coupons := make([]coupon.Coupon, 0, len(catalog.Coupons))
	for _, c := range catalog.Coupons {
		coupons = append(coupons, coupon.Coupon{
			ID:              c.ID,
			Code:            c.Code,
			OfferPercentage: c.OfferPercentage,
			MinimumPrice:    c.MinimumPrice,
			MaximumDiscount: c.MaximumDiscount,
			UsageLimit:      c.UsageLimit,
			MaxGlobalUsage:  c.MaxGlobalUsage,
			ExpiresOn:       now.AddDate(0, 0, c.Days),
			Active:          true,
		})
	}
	if err := repository.NewCouponRepository(pool).UpsertMany(ctx, coupons); err != nil {
		return err
	}
	slog.Info("upserted coupons", slog.Int("count", len(coupons)))

	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{"admin"},
	}); err != nil {
		return err
	}
	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
