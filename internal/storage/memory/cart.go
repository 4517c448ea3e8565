package memory

import (
	"context"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Carts implements cart.Repository.
type Carts struct{ s *Store }

var _ cart.Repository = (*Carts)(nil)

func (r *Carts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return cloneCart(c), nil
}

func (r *Carts) Save(_ context.Context, c *cart.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.Version = 1
	if old, ok := r.s.carts[c.UserID]; ok {
		c.Version = old.Version + 1
	}
	r.s.carts[c.UserID] = cloneCart(c)
	return nil
}
