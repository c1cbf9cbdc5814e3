package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/rownie/vc-module-cart/pkg/errors"
	"github.com/rownie/vc-module-cart/internal/domain"
)

const (
	cartKeyPrefix  = "cart:"
	ownerKeyPrefix = "cart:owner:"
	idSetKey       = "cart:ids"
)

// CartRepository implements repository.CartRepository using Redis. Each cart
// is stored as one JSON value under its id, with an owner-tuple index entry
// pointing back at the id and a set of all live ids for search.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository. Carts expire
// after ttl of inactivity; every Save refreshes the expiry.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

func cartKey(id string) string {
	return cartKeyPrefix + id
}

func ownerKey(owner domain.OwnerKey) string {
	return ownerKeyPrefix + strings.Join([]string{owner.StoreID, owner.CustomerID, owner.Name, owner.Currency}, ":")
}

// GetByIDs retrieves carts by id. Ids that do not resolve are skipped.
func (r *CartRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Cart, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cartKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget carts: %w", err)
	}

	carts := make([]*domain.Cart, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var cart domain.Cart
		if err := json.Unmarshal([]byte(data), &cart); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
		carts = append(carts, &cart)
	}

	return carts, nil
}

// GetByOwner retrieves the cart for the given owner tuple via the owner index.
func (r *CartRepository) GetByOwner(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	id, err := r.client.Get(ctx, ownerKey(owner)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("cart", owner.CustomerID+"/"+owner.Name)
		}
		return nil, fmt.Errorf("redis get cart owner index: %w", err)
	}

	carts, err := r.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		// Index entry outlived the cart value; treat as missing.
		return nil, apperrors.NotFound("cart", id)
	}
	return carts[0], nil
}

// Save persists each cart, its owner index entry, and its id-set membership
// in one pipeline per call.
func (r *CartRepository) Save(ctx context.Context, carts ...*domain.Cart) error {
	if len(carts) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, cart := range carts {
		data, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}
		pipe.Set(ctx, cartKey(cart.ID), data, r.ttl)
		pipe.Set(ctx, ownerKey(cart.OwnerKey()), cart.ID, r.ttl)
		pipe.SAdd(ctx, idSetKey, cart.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save carts: %w", err)
	}
	return nil
}

// Delete removes carts, their owner index entries, and their id-set
// memberships. Unknown ids are ignored.
func (r *CartRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	// Load first so the owner index entries can be removed too.
	carts, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, cart := range carts {
		pipe.Del(ctx, ownerKey(cart.OwnerKey()))
	}
	for _, id := range ids {
		pipe.Del(ctx, cartKey(id))
		pipe.SRem(ctx, idSetKey, id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete carts: %w", err)
	}
	return nil
}

// Search loads all live carts, filters them against the criteria, and
// returns the requested page plus the total match count, newest first.
func (r *CartRepository) Search(ctx context.Context, criteria domain.SearchCriteria, offset, limit int) ([]*domain.Cart, int, error) {
	ids, err := r.client.SMembers(ctx, idSetKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis smembers cart ids: %w", err)
	}

	carts, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	matched := carts[:0]
	for _, cart := range carts {
		if cart.Matches(criteria) {
			matched = append(matched, cart)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*domain.Cart{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
