// Package settings persists the operator's sender identity. The provider API
// key is supplied per request and is never stored here.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSettings = []byte("settings")
	keySender      = []byte("sender")
)

// EmailPattern is the address shape accepted for senders and recipients
var EmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Sender is the From identity used for outgoing email
type Sender struct {
	FromEmail string    `json:"fromEmail"`
	FromName  string    `json:"fromName,omitempty"`
	SavedAt   time.Time `json:"savedAt"`
}

// Validate checks the sender fields. The first failure is returned.
func (s Sender) Validate() error {
	if err := validation.Validate(s.FromEmail,
		validation.Required.Error("From email is required"),
		validation.Match(EmailPattern).Error("Please enter a valid email address"),
	); err != nil {
		return err
	}
	return validation.Validate(s.FromName,
		validation.RuneLength(0, 100).Error("From name must be at most 100 characters"),
		validation.By(noLineBreaks),
	)
}

// From formats the sender as "Name <email>", or just the address when no
// display name is set.
func (s Sender) From() string {
	if s.FromName == "" {
		return s.FromEmail
	}
	return fmt.Sprintf("%s <%s>", s.FromName, s.FromEmail)
}

// Store provides sender settings storage
type Store struct {
	db *bolt.DB
}

// NewStore creates a settings store using the provided BoltDB instance
func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create settings bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Sender returns the saved sender, or nil if none is configured
func (s *Store) Sender(ctx context.Context) (*Sender, error) {
	var sender *Sender

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get(keySender)
		if data == nil {
			return nil
		}
		sender = &Sender{}
		return json.Unmarshal(data, sender)
	})

	return sender, err
}

// SaveSender validates and stores the sender. Fields are trimmed first.
func (s *Store) SaveSender(ctx context.Context, sender *Sender) error {
	sender.FromEmail = strings.TrimSpace(sender.FromEmail)
	sender.FromName = strings.TrimSpace(sender.FromName)
	if err := sender.Validate(); err != nil {
		return err
	}
	sender.SavedAt = time.Now()

	data, err := json.Marshal(sender)
	if err != nil {
		return fmt.Errorf("failed to marshal sender: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keySender, data)
	})
}

// ClearSender removes the saved sender
func (s *Store) ClearSender(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete(keySender)
	})
}

func noLineBreaks(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("From name must not contain line breaks")
	}
	return nil
}
