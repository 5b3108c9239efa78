// Package spamcache keeps the latest classification per phone number for a
// fixed retention window.
package spamcache

import (
	"context"
	"time"

	"github.com/chadiek/callscreen/internal/metrics"
	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

// DefaultRetention is how long a classification stays valid.
const DefaultRetention = 7 * 24 * time.Hour

// Cache maps a phone number to its current classification. Implementations
// are safe for concurrent use; concurrent puts for one key are last-write-wins.
type Cache interface {
	// Get returns the current record, evicting it first if it has expired.
	Get(ctx context.Context, number phone.Number) (models.ClassificationRecord, bool)
	// Put makes rec the current record for rec.PhoneNumber.
	Put(ctx context.Context, rec models.ClassificationRecord) error
}

func expired(rec models.ClassificationRecord, now time.Time, retention time.Duration) bool {
	return !now.Before(rec.ObservedAt.Add(retention))
}

func observe(result string) {
	metrics.CacheLookups.WithLabelValues(result).Inc()
}
