package storage

import (
	"context"
	"errors"
	"strings"

	logx "pacewatch/pkg/logx"
)

// Store is the persistence API used by the watch loop.
//
// CheckAndRecord is the dedupe primitive: a notification event has one
// canonical key plus historically-valid aliases, and the whole set is checked
// and recorded as one atomic operation. It returns fresh=true exactly once
// per alias set for the lifetime of the store.
type Store interface {
	CheckAndRecord(ctx context.Context, keys []string) (fresh bool, err error)
	AppendNotification(ctx context.Context, e NotificationEntry) error
	Compact(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
