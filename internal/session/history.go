package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"vendotrash/internal/domain"
)

const DefaultHistoryLimit = 5

func historyKey(userID int) string {
	return fmt.Sprintf("detection_history:%d", userID)
}

// History keeps the newest detections per user, newest first.
type History struct {
	store Store
	limit int
	now   func() time.Time
}

func NewHistory(store Store, limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{store: store, limit: limit, now: time.Now}
}

func (h *History) Append(ctx context.Context, userID int, entry domain.DetectionHistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("History.Append: encoding entry: %w", err)
	}
	if err := h.store.PushCapped(ctx, historyKey(userID), string(raw), h.limit); err != nil {
		return fmt.Errorf("History.Append: %w", err)
	}
	return nil
}

// Read never returns nil; unreadable entries are skipped.
func (h *History) Read(ctx context.Context, userID int) ([]domain.DetectionHistoryEntry, error) {
	items, err := h.store.List(ctx, historyKey(userID))
	if err != nil {
		return nil, fmt.Errorf("History.Read: %w", err)
	}

	entries := make([]domain.DetectionHistoryEntry, 0, len(items))
	for _, raw := range items {
		var e domain.DetectionHistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Printf("History: skipping unreadable entry for user %d: %v", userID, err)
			continue
		}
		entries = append(entries, e)
		if len(entries) == h.limit {
			break
		}
	}
	return entries, nil
}

func (h *History) Clear(ctx context.Context, userID int) (bool, error) {
	found, err := h.store.Delete(ctx, historyKey(userID))
	if err != nil {
		return false, fmt.Errorf("History.Clear: %w", err)
	}
	return found, nil
}
