package storage

import (
	"context"
	"fmt"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/config"
)

// New opens the backend selected by cfg.DBType.
func New(ctx context.Context, cfg *config.Config, logger internal.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.DBType {
	case "file":
		s, err = NewFileStorage(cfg.DataFile, logger)
	case "postgres":
		s, err = NewPostgresStorage(ctx, cfg.DBDSN, logger)
	case "sqlite":
		s, err = NewSQLiteStorage(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.DBType)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
