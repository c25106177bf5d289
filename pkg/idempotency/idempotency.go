package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brunovalongo/fretepay-backend/pkg/redis"
)

// Guard tracks processed webhook event IDs per provider using Redis SETNX
// with a TTL. Keys follow the `fp:idempotency:webhook:<provider>:<event_id>`
// pattern. Gateways redeliver events; the guard lets the handler answer a
// fast 200 without re-touching the database.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a replay guard that marks events as processed for the given TTL.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMark returns true if the event has already been processed and
// otherwise marks it as processed with the configured TTL.
func (g *Guard) CheckAndMark(ctx context.Context, provider, eventID string) (bool, error) {
	key, err := g.eventKey(provider, eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release removes the processed mark so a failed handler can be retried by
// the provider's redelivery.
func (g *Guard) Release(ctx context.Context, provider, eventID string) error {
	key, err := g.eventKey(provider, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) eventKey(provider, eventID string) (string, error) {
	provider = strings.TrimSpace(provider)
	eventID = strings.TrimSpace(eventID)
	if provider == "" {
		return "", errors.New("provider name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("webhook:%s", provider)
	return g.store.IdempotencyKey(scope, eventID), nil
}
