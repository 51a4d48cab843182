// Package store persists events and alerts in an embedded bbolt
// database. Writes commit synchronously, so an alert reported as
// persisted survives an immediate crash.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

var (
	eventsBucket = []byte("events")
	alertsBucket = []byte("alerts")
)

// Store is the persistence handle consumed by the collector loop and
// the dispatcher.
type Store struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// Open creates or opens the database at path, creating parent
// directories as needed.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, alertsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// InsertEvents persists a batch of raw events in one transaction. An
// empty batch is a no-op.
func (s *Store) InsertEvents(events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		for i := range events {
			data, err := json.Marshal(&events[i])
			if err != nil {
				return fmt.Errorf("marshaling event: %w", err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating event key: %w", err)
			}
			if err := b.Put(seqKey(seq), data); err != nil {
				return fmt.Errorf("writing event: %w", err)
			}
		}
		return nil
	})
}

// InsertAlert persists one alert. Synchronous: the transaction has
// committed when this returns.
func (s *Store) InsertAlert(alert *core.Alert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(alertsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating alert key: %w", err)
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("writing alert: %w", err)
		}
		return nil
	})
}

// RecentAlerts returns up to limit alerts, most recent first.
func (s *Store) RecentAlerts(limit int) ([]*core.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	var alerts []*core.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(alertsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(alerts) < limit; k, v = c.Prev() {
			alert, err := core.UnmarshalAlert(v)
			if err != nil {
				s.logger.Warn().Err(err).Msg("skipping unreadable alert record")
				continue
			}
			alerts = append(alerts, alert)
		}
		return nil
	})
	return alerts, err
}

// Counts returns the number of stored events and alerts.
func (s *Store) Counts() (events, alerts int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		events = tx.Bucket(eventsBucket).Stats().KeyN
		alerts = tx.Bucket(alertsBucket).Stats().KeyN
		return nil
	})
	return events, alerts, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
