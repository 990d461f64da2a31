package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"vendotrash/internal/domain"
)

const (
	DefaultTTL = 600 * time.Second

	activeCustomerKey = "session:active_user"
)

func sessionKey(userID int) string {
	return fmt.Sprintf("session:%d", userID)
}

// Gate tracks which customers have pressed "insert" and are waiting for the
// machine to classify an item. At most one record exists per user.
type Gate struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	locks *keyedMutex
}

func NewGate(store Store, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
}

// Prepare replaces any session the user already has and marks the user as the
// machine's current customer.
func (g *Gate) Prepare(ctx context.Context, userID int, token string) (*domain.SessionRecord, error) {
	unlock := g.locks.Lock(sessionKey(userID))
	defer unlock()

	if _, err := g.store.Delete(ctx, sessionKey(userID)); err != nil {
		return nil, fmt.Errorf("Gate.Prepare: clearing previous session: %w", err)
	}

	now := g.now().UTC()
	rec := &domain.SessionRecord{
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("Gate.Prepare: encoding session: %w", err)
	}
	if err := g.store.Set(ctx, sessionKey(userID), string(raw), g.ttl); err != nil {
		return nil, fmt.Errorf("Gate.Prepare: %w", err)
	}
	if err := g.store.Set(ctx, activeCustomerKey, strconv.Itoa(userID), g.ttl); err != nil {
		return nil, fmt.Errorf("Gate.Prepare: marking active customer: %w", err)
	}
	log.Printf("SessionGate: user %d ready to insert until %s", userID, rec.ExpiresAt.Format(time.RFC3339))
	return rec, nil
}

// Get returns the user's active session, or nil when there is none.
func (g *Gate) Get(ctx context.Context, userID int) (*domain.SessionRecord, error) {
	found, raw, err := g.store.Get(ctx, sessionKey(userID))
	if err != nil {
		return nil, fmt.Errorf("Gate.Get: %w", err)
	}
	if !found {
		return nil, nil
	}

	// lazy deletes only remove the value read here, never a newer Prepare
	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Printf("SessionGate: dropping unreadable session for user %d: %v", userID, err)
		_, _ = g.store.DeleteIfEquals(ctx, sessionKey(userID), raw)
		return nil, nil
	}
	if rec.ExpiredAt(g.now()) {
		_, _ = g.store.DeleteIfEquals(ctx, sessionKey(userID), raw)
		return nil, nil
	}
	return &rec, nil
}

func (g *Gate) IsActive(ctx context.Context, userID int) (bool, error) {
	rec, err := g.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// End removes the user's session and reports whether an active one existed.
func (g *Gate) End(ctx context.Context, userID int) (bool, error) {
	unlock := g.locks.Lock(sessionKey(userID))
	defer unlock()

	rec, err := g.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("Gate.End: %w", err)
	}
	if _, err := g.store.Delete(ctx, sessionKey(userID)); err != nil {
		return false, fmt.Errorf("Gate.End: %w", err)
	}

	if _, err := g.store.DeleteIfEquals(ctx, activeCustomerKey, strconv.Itoa(userID)); err != nil {
		log.Printf("SessionGate: could not clear active customer %d: %v", userID, err)
	}

	if rec != nil {
		log.Printf("SessionGate: session ended for user %d", userID)
	}
	return rec != nil, nil
}

// ActiveCustomer returns the session of the most recently prepared user while
// it is still open. The bridge uses it since it has no user of its own.
func (g *Gate) ActiveCustomer(ctx context.Context) (*domain.SessionRecord, error) {
	found, raw, err := g.store.Get(ctx, activeCustomerKey)
	if err != nil {
		return nil, fmt.Errorf("Gate.ActiveCustomer: %w", err)
	}
	if !found {
		return nil, nil
	}
	userID, err := strconv.Atoi(raw)
	if err != nil {
		_, _ = g.store.DeleteIfEquals(ctx, activeCustomerKey, raw)
		return nil, nil
	}

	rec, err := g.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Gate.ActiveCustomer: %w", err)
	}
	// a stale marker is left to its own TTL; the same user may be preparing again
	return rec, nil
}
