package memory

import (
	"context"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

type tokenRepository struct{ s *Store }

func (r tokenRepository) Get(ctx context.Context, tokenID string) (repositories.OrderToken, error) {
	defer r.s.lock(ctx)()

	token, ok := r.s.state.tokens[tokenID]
	if !ok {
		return repositories.OrderToken{}, notFound("orderIdempotency.get", "token %s not found", tokenID)
	}
	return token, nil
}

func (r tokenRepository) Create(ctx context.Context, token repositories.OrderToken) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.state.tokens[token.ID]; exists {
		return conflict("orderIdempotency.create", "token %s already exists", token.ID)
	}
	r.s.state.tokens[token.ID] = token
	return nil
}

type rateLimitRepository struct{ s *Store }

// Apply runs mutate under the store lock, so the read-check-write is atomic per key.
func (r rateLimitRepository) Apply(ctx context.Context, key string, ttl time.Duration, mutate repositories.RateLimitMutation) (domain.RateLimitRecord, error) {
	defer r.s.lock(ctx)()

	var current *domain.RateLimitRecord
	if entry, ok := r.s.state.rateLimits[key]; ok {
		record := entry.record
		current = &record
	}
	next, err := mutate(current)
	if err != nil {
		return domain.RateLimitRecord{}, err
	}
	next.Key = key
	r.s.state.rateLimits[key] = rateLimitEntry{
		record:    next,
		expiresAt: time.UnixMilli(next.LastRequest).Add(ttl),
	}
	return next, nil
}

type blocklistRepository struct{ s *Store }

func (r blocklistRepository) IsBlocked(ctx context.Context, address string) (bool, error) {
	defer r.s.lock(ctx)()

	_, blocked := r.s.state.blocked[strings.TrimSpace(address)]
	return blocked, nil
}

func (r blocklistRepository) Block(ctx context.Context, entry domain.BlockedAddress) error {
	defer r.s.lock(ctx)()

	address := strings.TrimSpace(entry.Address)
	if address == "" {
		return invalid("blockedAddresses.block", "address is required")
	}
	entry.Address = address
	r.s.state.blocked[address] = entry
	return nil
}
