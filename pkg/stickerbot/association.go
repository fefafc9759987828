package stickerbot

import (
	"strings"
	"time"
)

// Association binds one normalized trigger text to one image reference,
// owned by one sender. The (ImageRef, Trigger) pair is unique system-wide.
type Association struct {
	// OwnerID is the numeric sender identity that created the binding.
	OwnerID int64
	// ImageRef is the opaque reference to a previously sent image.
	ImageRef string
	// Trigger is the normalized (lower-cased, trimmed) trigger text.
	Trigger string
	// CreatedAt records when the binding was created.
	CreatedAt time.Time
}

// UsageEvent records one successful search resolution. Append-only.
type UsageEvent struct {
	OwnerID  int64
	ImageRef string
	Trigger  string
	UsedAt   time.Time
}

// TriggerUsage is one row of the usage leaderboard.
type TriggerUsage struct {
	Trigger string
	Count   int64
}

// Stats aggregates store-wide statistics.
type Stats struct {
	// TotalAssociations is the number of stored trigger bindings.
	TotalAssociations int64
	// UniqueImages is the number of distinct image references bound.
	UniqueImages int64
	// TotalOwners is the number of distinct owners with at least one binding.
	TotalOwners int64
	// TopTriggers ranks trigger text by usage count, descending, at most 10
	// entries, ties broken by trigger text ascending.
	TopTriggers []TriggerUsage
}

// NormalizeTrigger lower-cases and trims trigger or search text. Every trigger
// is normalized before storage and every search input before lookup, so
// substring matching is case-insensitive by construction.
func NormalizeTrigger(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
