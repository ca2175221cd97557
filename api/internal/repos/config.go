package repos

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/shared/workflow"
)

type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

// LoadSettings resolves the workflow settings snapshot for one operation.
// Keys missing from app_configs keep their compiled defaults; malformed
// values fail the load rather than being silently skipped.
func (r *ConfigRepo) LoadSettings(ctx context.Context) (workflow.Settings, error) {
	settings := workflow.DefaultSettings()

	rows, err := r.pool.Query(ctx, `
		SELECT key, value_json
		FROM app_configs
		WHERE key = ANY($1)
	`, []string{
		workflow.SettingWIPLimit,
		workflow.SettingAutoTimeoutMinutes,
		workflow.SettingWorkdayHours,
		workflow.SettingDifficultyWeights,
	})
	if err != nil {
		return workflow.Settings{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return workflow.Settings{}, err
		}
		switch key {
		case workflow.SettingWIPLimit:
			if err := json.Unmarshal(value, &settings.WIPLimit); err != nil {
				return workflow.Settings{}, Validationf("config %s is not an integer", key)
			}
		case workflow.SettingAutoTimeoutMinutes:
			if err := json.Unmarshal(value, &settings.AutoTimeoutMinutes); err != nil {
				return workflow.Settings{}, Validationf("config %s is not an integer", key)
			}
		case workflow.SettingWorkdayHours:
			if err := json.Unmarshal(value, &settings.WorkdayHours); err != nil {
				return workflow.Settings{}, Validationf("config %s is not an integer", key)
			}
		case workflow.SettingDifficultyWeights:
			weights := map[string]float64{}
			if err := json.Unmarshal(value, &weights); err != nil {
				return workflow.Settings{}, Validationf("config %s is not a weight map", key)
			}
			settings.DifficultyWeights = weights
		}
	}
	return settings, rows.Err()
}
