// Package memory implements every repository on process memory. It backs
// the service when no database is configured and the scenario tests.
//
// All repositories returned by one Store share a single lock, so a
// settlement or order update is applied as one unit, like a database
// transaction.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wallet"
)

type usageKey struct {
	couponID string
	userID   string
}

// Store holds all state.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	products   map[string]*product.Product
	categories map[string]*product.Category
	offers     map[string]pricing.Offer
	coupons    map[string]*coupon.Coupon
	usage      map[usageKey]int
	carts      map[string]*cart.Cart
	orders     map[string]*order.Order
	orderSeq   []string
	wallets    map[string]*wallet.Wallet
	txs        map[string][]wallet.Transaction
	apikeys    map[string]*auth.APIKeyInfo
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		now:        time.Now,
		products:   make(map[string]*product.Product),
		categories: make(map[string]*product.Category),
		offers:     make(map[string]pricing.Offer),
		coupons:    make(map[string]*coupon.Coupon),
		usage:      make(map[usageKey]int),
		carts:      make(map[string]*cart.Cart),
		orders:     make(map[string]*order.Order),
		wallets:    make(map[string]*wallet.Wallet),
		txs:        make(map[string][]wallet.Transaction),
		apikeys:    make(map[string]*auth.APIKeyInfo),
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = cloneProduct(&p)
}

// PutCategory inserts or replaces a category.
func (s *Store) PutCategory(c product.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.OfferIDs = append([]string(nil), c.OfferIDs...)
	s.categories[c.ID] = &c
}

// PutOffer inserts or replaces an offer.
func (s *Store) PutOffer(o pricing.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[o.ID] = o
}

// PutCoupon inserts or replaces a coupon.
func (s *Store) PutCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.ID] = &c
}

// PutAPIKey registers an API key by its hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k.Scopes = append([]string(nil), k.Scopes...)
	s.apikeys[k.KeyHash] = &k
}

// Products returns the catalog repository.
func (s *Store) Products() *Products { return &Products{s: s} }

// Offers returns the offer repository.
func (s *Store) Offers() *Offers { return &Offers{s: s} }

// Coupons returns the coupon repository.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

// Carts returns the cart repository.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Wallets returns the wallet repository.
func (s *Store) Wallets() *Wallets { return &Wallets{s: s} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

func cloneProduct(p *product.Product) *product.Product {
	cp := *p
	cp.Sizes = append([]product.Size(nil), p.Sizes...)
	cp.OfferIDs = append([]string(nil), p.OfferIDs...)
	return &cp
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	cp.Refunds = append([]order.Refund(nil), o.Refunds...)
	if o.Coupon != nil {
		c := *o.Coupon
		cp.Coupon = &c
	}
	return &cp
}

// applyStock applies deltas to copies of the affected products and returns
// them. Nothing in the store changes. A missing product is skipped for
// positive deltas, which restock lines of since-deleted products.
func (s *Store) applyStock(deltas []product.StockDelta) (map[string]*product.Product, error) {
	touched := make(map[string]*product.Product)
	for _, d := range deltas {
		p, ok := touched[d.ProductID]
		if !ok {
			stored, exists := s.products[d.ProductID]
			if !exists {
				if d.Quantity >= 0 {
					continue
				}
				return nil, &product.InsufficientStockError{ProductID: d.ProductID, Size: d.Size, Requested: -d.Quantity}
			}
			p = cloneProduct(stored)
			touched[d.ProductID] = p
		}
		if err := p.ApplyDelta(d.Size, d.Quantity); err != nil {
			return nil, err
		}
	}
	return touched, nil
}

func (s *Store) appendTx(e wallet.Entry, typ wallet.TxType) wallet.Transaction {
	now := s.now()
	w, ok := s.wallets[e.UserID]
	if !ok {
		w = &wallet.Wallet{UserID: e.UserID, Balance: decimal.Zero}
		s.wallets[e.UserID] = w
	}
	amount := e.Amount.Round(2)
	if typ == wallet.Credit {
		w.Balance = w.Balance.Add(amount)
	} else {
		w.Balance = w.Balance.Sub(amount)
	}
	w.UpdatedAt = now

	tx := wallet.Transaction{
		ID:          uuid.New().String(),
		UserID:      e.UserID,
		Amount:      amount,
		Type:        typ,
		OrderID:     e.OrderID,
		Description: e.Description,
		Status:      wallet.StatusCompleted,
		CreatedAt:   now,
	}
	s.txs[e.UserID] = append(s.txs[e.UserID], tx)
	return tx
}

func (s *Store) balance(userID string) decimal.Decimal {
	if w, ok := s.wallets[userID]; ok {
		return w.Balance
	}
	return decimal.Zero
}
