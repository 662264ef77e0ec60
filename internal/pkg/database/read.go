package database

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// GetProperties returns the latest values of one device, all devices when
// identifier is empty.
func (db *Database) GetProperties(ctx context.Context, identifier string) (model.Properties, error) {
	const query = `
	SELECT identifier, slug, value, unit_of_measurement, updated_at
	FROM latest_property
	WHERE $1 = '' OR identifier = $1
	ORDER BY identifier, slug;
	`

	rows, err := db.pool.Query(ctx, query, identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProperties(rows)
}

func scanProperties(rows pgx.Rows) (model.Properties, error) {
	properties := model.Properties{}
	for rows.Next() {
		var property model.Property
		if err := rows.Scan(&property.Identifier, &property.Slug, &property.Value, &property.Unit, &property.UpdatedAt); err != nil {
			return nil, err
		}
		properties = append(properties, property)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return properties, nil
}

// LoadStates returns the stored state of every device keyed by device id.
// Rows that no longer decode are skipped.
func (db *Database) LoadStates(ctx context.Context) (map[string]device.State, error) {
	rows, err := db.pool.Query(ctx, `SELECT device_id, state FROM device_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := map[string]device.State{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var state device.State
		if err := json.Unmarshal(data, &state); err != nil {
			db.logger.Warn("discarding stored device state", zap.String("device", id), zap.Error(err))
			continue
		}
		states[id] = state
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}
