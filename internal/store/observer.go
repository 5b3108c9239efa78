package store

import (
	"context"
	"log"

	"github.com/chadiek/callscreen/internal/events"
)

// RecordClassifications stores every fresh classification published on bus
// until ctx is done. Cached and fallback results are skipped.
func (s *Store) RecordClassifications(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c, isClassified := ev.(events.Classified)
			if !isClassified || c.Cached || c.Fallback {
				continue
			}
			rec := c.Record
			rec.ID = 0
			if err := s.InsertClassification(context.WithoutCancel(ctx), &rec); err != nil {
				log.Printf("store: record classification %s: %v", rec.PhoneNumber, err)
			}
		}
	}
}
