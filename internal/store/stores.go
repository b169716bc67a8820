// Package store assembles the persistence backends: sqlite in standalone
// mode, Postgres in managed mode.
package store

import (
	"fmt"

	"github.com/nextlevelbuilder/clawgate/internal/audit"
	"github.com/nextlevelbuilder/clawgate/internal/config"
	"github.com/nextlevelbuilder/clawgate/internal/cron"
	"github.com/nextlevelbuilder/clawgate/internal/store/pg"
	"github.com/nextlevelbuilder/clawgate/internal/store/sqlite"
)

// Stores bundles every persistence backend the gateway needs.
type Stores struct {
	AuditArchive audit.Archive
	Cron         cron.Store

	closer func() error
}

// Close releases the underlying database handles.
func (s *Stores) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// New builds the store set for the configured mode.
// Standalone: sqlite audit archive + file-based cron store.
// Managed: Postgres for both.
func New(cfg *config.Config) (*Stores, error) {
	if cfg.IsManagedMode() {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Stores{
			AuditArchive: pg.NewAuditArchive(db),
			Cron:         pg.NewCronStore(db),
			closer:       db.Close,
		}, nil
	}

	archive, err := sqlite.NewAuditArchive(config.ExpandHome(cfg.Database.SQLitePath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}
	cronStore, err := cron.NewFileStore(config.ExpandHome(cfg.Cron.StorageDir))
	if err != nil {
		archive.Close()
		return nil, err
	}
	return &Stores{
		AuditArchive: archive,
		Cron:         cronStore,
		closer:       archive.Close,
	}, nil
}
