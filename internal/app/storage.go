package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wallet"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/pkg/health"
)

// backend is the set of repositories the services run on.
type backend struct {
	products product.Repository
	offers   pricing.OfferRepository
	coupons  coupon.Repository
	carts    cart.Repository
	orders   order.Repository
	wallets  wallet.Repository
	apikeys  auth.Repository

	// ping is the readiness check of the store, nil when always ready.
	ping  health.CheckFunc
	close func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	switch cfg.Storage {
	case StorageMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		st := memory.New()
		if cfg.BootstrapAPIKey != "" {
			st.PutAPIKey(auth.APIKeyInfo{
				ID:      "bootstrap",
				KeyHash: auth.HashKey([]byte(cfg.APIKeyPepper), cfg.BootstrapAPIKey),
				Name:    "bootstrap",
				Scopes:  []string{"*"},
			})
		}
		return memoryBackend(st), nil
	case StoragePostgres:
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := repository.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &backend{
			products: repository.NewProductRepository(pool),
			offers:   repository.NewOfferRepository(pool),
			coupons:  repository.NewCouponRepository(pool),
			carts:    repository.NewCartRepository(pool),
			orders:   repository.NewOrderRepository(pool),
			wallets:  repository.NewWalletRepository(pool),
			apikeys:  repository.NewAPIKeyRepository(pool),
			ping:     health.PingCheck("postgres", pool),
			close:    pool.Close,
		}, nil
	default:
		return nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}

func memoryBackend(st *memory.Store) *backend {
	return &backend{
		products: st.Products(),
		offers:   st.Offers(),
		coupons:  st.Coupons(),
		carts:    st.Carts(),
		orders:   st.Orders(),
		wallets:  st.Wallets(),
		apikeys:  st.APIKeys(),
		close:    func() {},
	}
}
