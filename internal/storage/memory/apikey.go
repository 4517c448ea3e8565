package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

// APIKeys implements auth.Repository.
type APIKeys struct{ s *Store }

var _ auth.Repository = (*APIKeys)(nil)

func (r *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.apikeys[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	cp := *k
	return &cp, nil
}
