// Package history keeps a capped log of sent emails.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/htmlmailer/internal/storage"
)

// MaxRecords is how many records are kept; older ones are dropped on append
const MaxRecords = 100

var bucketHistory = []byte("send_history")

// Record describes one successful send. It never carries the email body.
type Record struct {
	ID           string    `json:"id"`
	TemplateName string    `json:"templateName"`
	Subject      string    `json:"subject"`
	Recipients   []string  `json:"recipients"`
	SentAt       time.Time `json:"sentAt"`
	EmailID      string    `json:"emailId,omitempty"`
}

// Store provides send history storage
type Store struct {
	db *bolt.DB
}

// NewStore creates a history store using the provided BoltDB instance
func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores a record and drops the oldest ones beyond MaxRecords
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketHistory)
		if err := bucket.Put(storage.TimeKey(rec.SentAt, rec.ID), data); err != nil {
			return err
		}

		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		if len(keys) <= MaxRecords {
			return nil
		}

		for _, k := range keys[:len(keys)-MaxRecords] {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns up to limit records, newest first. A limit of 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	records := []*Record{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()

		// Iterate in reverse order (newest first)
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, &rec)

			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})

	return records, err
}

// DeleteOlderThan removes records sent before now minus maxAge and returns
// how many were deleted
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := storage.TimeKey(time.Now().Add(-maxAge), "")
	var deleted int

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketHistory)

		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

// Clear removes all records and returns how many were deleted
func (s *Store) Clear(ctx context.Context) (int, error) {
	var deleted int

	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			deleted++
		}

		if err := tx.DeleteBucket(bucketHistory); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketHistory)
		return err
	})

	return deleted, err
}
