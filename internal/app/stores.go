package app

import (
	"fmt"
	"log/slog"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/htmlmailer/internal/history"
	"github.com/foxzi/htmlmailer/internal/settings"
	"github.com/foxzi/htmlmailer/internal/storage"
	"github.com/foxzi/htmlmailer/internal/template"
)

// Stores groups the operator-side state kept in the bbolt file
type Stores struct {
	DB       *bolt.DB
	Library  *template.Library
	History  *history.Store
	Settings *settings.Store
}

// OpenStores opens the database at path and initializes every store
func OpenStores(path string, logger *slog.Logger) (*Stores, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	tmplStorage, err := template.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	hist, err := history.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	sets, err := settings.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Stores{
		DB:       db,
		Library:  template.NewLibrary(tmplStorage, logger.With("component", "templates")),
		History:  hist,
		Settings: sets,
	}, nil
}

// Close closes the underlying database
func (s *Stores) Close() error {
	return s.DB.Close()
}
