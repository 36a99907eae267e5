package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

const (
	orderTokensCollection      = "orderIdempotency"
	rateLimitsCollection       = "rateLimits"
	blockedAddressesCollection = "blockedAddresses"
)

type orderTokenDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderTokenRepository stores order creation tokens. Documents are create-once.
type OrderTokenRepository struct {
	tokens *pfirestore.BaseRepository[orderTokenDocument]
}

// NewOrderTokenRepository constructs a Firestore-backed token repository.
func NewOrderTokenRepository(provider *pfirestore.Provider) (*OrderTokenRepository, error) {
	if provider == nil {
		return nil, errors.New("order token repository requires firestore provider")
	}
	return &OrderTokenRepository{
		tokens: pfirestore.NewBaseRepository[orderTokenDocument](provider, orderTokensCollection, nil),
	}, nil
}

func (r *OrderTokenRepository) Get(ctx context.Context, tokenID string) (repositories.OrderToken, error) {
	if r == nil || r.tokens == nil {
		return repositories.OrderToken{}, errors.New("order token repository not initialised")
	}
	doc, err := r.tokens.Get(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return repositories.OrderToken{}, err
	}
	return repositories.OrderToken{ID: doc.ID, OrderID: doc.Data.OrderID, CreatedAt: doc.Data.CreatedAt.UTC()}, nil
}

func (r *OrderTokenRepository) Create(ctx context.Context, token repositories.OrderToken) error {
	if r == nil || r.tokens == nil {
		return errors.New("order token repository not initialised")
	}
	return r.tokens.Create(ctx, strings.TrimSpace(token.ID), orderTokenDocument{
		OrderID:   token.OrderID,
		CreatedAt: token.CreatedAt.UTC(),
	})
}

type rateLimitDocument struct {
	Key         string    `firestore:"key"`
	Count       int       `firestore:"count"`
	LastRequest int64     `firestore:"lastRequest"`
	ExpiresAt   time.Time `firestore:"expiresAt"`
}

// RateLimitRepository keeps fixed-window counters under rateLimits/{sha256(key)}. The expiresAt field
// is intended for a Firestore TTL policy, which replaces the periodic sweep of the memory store.
type RateLimitRepository struct {
	provider *pfirestore.Provider
	limits   *pfirestore.BaseRepository[rateLimitDocument]
}

// NewRateLimitRepository constructs a Firestore-backed rate limit repository.
func NewRateLimitRepository(provider *pfirestore.Provider) (*RateLimitRepository, error) {
	if provider == nil {
		return nil, errors.New("rate limit repository requires firestore provider")
	}
	return &RateLimitRepository{
		provider: provider,
		limits:   pfirestore.NewBaseRepository[rateLimitDocument](provider, rateLimitsCollection, nil),
	}, nil
}

// Apply reads, mutates and writes the counter inside one transaction.
func (r *RateLimitRepository) Apply(ctx context.Context, key string, ttl time.Duration, mutate repositories.RateLimitMutation) (domain.RateLimitRecord, error) {
	if r == nil || r.limits == nil {
		return domain.RateLimitRecord{}, errors.New("rate limit repository not initialised")
	}
	if mutate == nil {
		return domain.RateLimitRecord{}, errors.New("rate limit apply: mutation is required")
	}
	docID := hashKey(key)

	var result domain.RateLimitRecord
	err := r.provider.RunInTx(ctx, func(ctx context.Context) error {
		var current *domain.RateLimitRecord
		doc, err := r.limits.Get(ctx, docID)
		switch {
		case err == nil:
			current = &domain.RateLimitRecord{Key: key, Count: doc.Data.Count, LastRequest: doc.Data.LastRequest}
		case isNotFound(err):
		default:
			return err
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}
		next.Key = key
		if err := r.limits.Set(ctx, docID, rateLimitDocument{
			Key:         key,
			Count:       next.Count,
			LastRequest: next.LastRequest,
			ExpiresAt:   time.UnixMilli(next.LastRequest).Add(ttl).UTC(),
		}); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return domain.RateLimitRecord{}, err
	}
	return result, nil
}

type blockedAddressDocument struct {
	Address   string    `firestore:"address"`
	Reason    string    `firestore:"reason,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// BlocklistRepository stores blocked addresses keyed by their hash.
type BlocklistRepository struct {
	blocked *pfirestore.BaseRepository[blockedAddressDocument]
}

// NewBlocklistRepository constructs a Firestore-backed blocklist.
func NewBlocklistRepository(provider *pfirestore.Provider) (*BlocklistRepository, error) {
	if provider == nil {
		return nil, errors.New("blocklist repository requires firestore provider")
	}
	return &BlocklistRepository{
		blocked: pfirestore.NewBaseRepository[blockedAddressDocument](provider, blockedAddressesCollection, nil),
	}, nil
}

func (r *BlocklistRepository) IsBlocked(ctx context.Context, address string) (bool, error) {
	if r == nil || r.blocked == nil {
		return false, errors.New("blocklist repository not initialised")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return false, nil
	}
	_, err := r.blocked.Get(ctx, hashKey(address))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *BlocklistRepository) Block(ctx context.Context, entry domain.BlockedAddress) error {
	if r == nil || r.blocked == nil {
		return errors.New("blocklist repository not initialised")
	}
	address := strings.TrimSpace(entry.Address)
	if address == "" {
		return invalidError("blockedAddresses.block", "address is required")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return r.blocked.Set(ctx, hashKey(address), blockedAddressDocument{
		Address:   address,
		Reason:    entry.Reason,
		CreatedAt: createdAt.UTC(),
	})
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
