package db

import (
	"context"
	"encoding/json"
	"time"

	"powersched/internal/schedule"
	"powersched/internal/types"
)

// ScheduleRepository persists per-scope schedule state. One row per scope
// key; the schedule data is a JSONB document mapping hostname to entry list.
type ScheduleRepository struct {
	db DBTX
}

// NewScheduleRepository creates a new ScheduleRepository backed by the given
// database connection or transaction.
func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FetchScopes returns the stored schedule data for each requested key.
// Keys with no stored row are present in the result with an empty
// HostSchedules, so callers never need to distinguish "missing" from "empty".
func (r *ScheduleRepository) FetchScopes(ctx context.Context, keys []string) (map[string]types.HostSchedules, error) {
	query := `
		SELECT key, data
		FROM scope_schedules
		WHERE key = ANY($1)`

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query scope schedules", err)
	}
	defer rows.Close()

	items := make(map[string]types.HostSchedules, len(keys))
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan scope schedule row", err)
		}
		data, err := decodeScopeData(raw)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt schedule data for scope "+key, err)
		}
		items[key] = data
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate scope schedule rows", err)
	}

	for _, key := range keys {
		if _, ok := items[key]; !ok {
			items[key] = make(types.HostSchedules)
		}
	}
	return items, nil
}

// SaveScope replaces the stored state of one scope. The write is a full
// upsert of the scope document, which is what makes a retried save
// idempotent.
func (r *ScheduleRepository) SaveScope(ctx context.Context, key string, data types.HostSchedules, updatedBy string, updatedAt time.Time) error {
	if data == nil {
		data = make(types.HostSchedules)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode schedule data", err)
	}

	query := `
		INSERT INTO scope_schedules (key, data, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Exec(ctx, query, key, raw, updatedBy, updatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save scope schedule", err)
	}
	return nil
}

// decodeScopeData decodes a stored JSONB document into HostSchedules. Each
// host value goes through schedule.DecodeEntryList so rows written by the
// previous single-entry store version still load.
func decodeScopeData(raw []byte) (types.HostSchedules, error) {
	if len(raw) == 0 {
		return make(types.HostSchedules), nil
	}
	var hosts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &hosts); err != nil {
		return nil, err
	}
	data := make(types.HostSchedules, len(hosts))
	for host, rawEntries := range hosts {
		entries, err := schedule.DecodeEntryList(rawEntries)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		data[host] = entries
	}
	return data, nil
}
