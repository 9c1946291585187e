package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/settings"
)

type settingsRepository struct {
	repository
}

var _ settings.Repository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *sqlx.DB) settings.Repository {
	return &settingsRepository{repository{db: db}}
}

func (repo settingsRepository) GetToggles(ctx context.Context, exec ...core.DBExecutor) (map[settings.EventType]bool, error) {
	var rows []struct {
		EventType string `db:"event_type"`
		Enabled   bool   `db:"enabled"`
	}
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, `SELECT event_type, enabled FROM notification_setting`); err != nil {
		return nil, core.NewStoreError(err, "querying notification settings")
	}

	toggles := make(map[settings.EventType]bool, len(rows))
	for _, row := range rows {
		toggles[settings.EventType(row.EventType)] = row.Enabled
	}
	return toggles, nil
}

func (repo settingsRepository) SaveToggles(ctx context.Context, toggles map[settings.EventType]bool, exec ...core.DBExecutor) error {
	return repo.withinTx(ctx, exec, func(ext sqlx.ExtContext) error {
		for evt, on := range toggles {
			_, err := ext.ExecContext(ctx,
				`INSERT INTO notification_setting (event_type, enabled) VALUES ($1, $2)
				ON CONFLICT (event_type) DO UPDATE SET enabled = EXCLUDED.enabled`,
				string(evt), on,
			)
			if err != nil {
				return core.NewStoreError(err, "saving notification setting")
			}
		}
		return nil
	})
}
