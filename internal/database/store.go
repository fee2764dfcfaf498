package database

import (
	"fmt"

	"dealwatch/internal/models"
)

// Store persists the known deals. Append and RewriteAll are durable before
// they return.
type Store interface {
	Load() ([]models.KnownDeal, error)
	Append(deal models.KnownDeal) error
	RewriteAll(deals []models.KnownDeal) error
	Close() error
}

const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open creates the store for backend at path
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendCSV, "":
		return NewCSVStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
