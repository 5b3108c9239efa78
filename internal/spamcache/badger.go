package spamcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

const keyPrefix = "spam/"

// Badger is a Cache persisted in BadgerDB so verdicts survive restarts.
type Badger struct {
	Retention time.Duration
	Now       func() time.Time

	db *badger.DB
}

// BadgerOptions configures the on-disk cache.
type BadgerOptions struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string
	// InMemory runs Badger without disk persistence (tests).
	InMemory bool
}

// OpenBadger opens or creates the cache database.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("spamcache: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(quietLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("spamcache: open badger: %w", err)
	}
	return &Badger{Retention: DefaultRetention, Now: time.Now, db: db}, nil
}

// Close releases the database.
func (b *Badger) Close() error { return b.db.Close() }

func (b *Badger) Get(_ context.Context, number phone.Number) (models.ClassificationRecord, bool) {
	key := []byte(keyPrefix + string(number))
	var rec models.ClassificationRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		observe("miss")
		return models.ClassificationRecord{}, false
	}
	if err != nil {
		log.Printf("spamcache: read %s: %v", number, err)
		observe("miss")
		return models.ClassificationRecord{}, false
	}
	if !expired(rec, b.Now(), b.Retention) {
		observe("hit")
		return rec, true
	}
	if err := b.evict(key, rec.ObservedAt); err != nil {
		log.Printf("spamcache: evict %s: %v", number, err)
	}
	observe("expired")
	return models.ClassificationRecord{}, false
}

// evict deletes key only if it still holds the record observed at seen, so a
// Put racing with the expiry check is kept.
func (b *Badger) evict(key []byte, seen time.Time) error {
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var cur models.ClassificationRecord
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &cur) }); err != nil {
			return err
		}
		if !cur.ObservedAt.Equal(seen) {
			return nil
		}
		return txn.Delete(key)
	})
}

func (b *Badger) Put(_ context.Context, rec models.ClassificationRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("spamcache: encode %s: %w", rec.PhoneNumber, err)
	}
	entry := badger.NewEntry([]byte(keyPrefix+string(rec.PhoneNumber)), val)
	// let badger drop the key on its own once the window has passed
	if ttl := rec.ObservedAt.Add(b.Retention).Sub(b.Now()); ttl > time.Second {
		entry = entry.WithTTL(ttl)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{}) { log.Printf("spamcache: badger: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) {
	log.Printf("spamcache: badger: "+f, v...)
}
func (quietLogger) Infof(string, ...interface{})  {}
func (quietLogger) Debugf(string, ...interface{}) {}
