package inmemdb

import (
	"context"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/settings"
)

type settingsRepository struct {
	db *settingsTable
}

var _ settings.Repository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *DB) settings.Repository {
	return &settingsRepository{db: db.settings}
}

func (repo *settingsRepository) GetToggles(_ context.Context, _ ...core.DBExecutor) (map[settings.EventType]bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	toggles := make(map[settings.EventType]bool, len(repo.db.toggles))
	for evt, on := range repo.db.toggles {
		toggles[evt] = on
	}
	return toggles, nil
}

func (repo *settingsRepository) SaveToggles(_ context.Context, toggles map[settings.EventType]bool, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for evt, on := range toggles {
		repo.db.toggles[evt] = on
	}
	return nil
}
