package database

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// Write upserts the latest value of every reading and marks the devices seen.
func (db *Database) Write(ctx context.Context, data []model.SensorReading) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range data {
		if _, err := tx.Exec(ctx, `
			INSERT INTO latest_property (identifier, slug, value, unit_of_measurement, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (identifier, slug) DO UPDATE
			SET value = EXCLUDED.value,
				unit_of_measurement = EXCLUDED.unit_of_measurement,
				updated_at = EXCLUDED.updated_at;
		`, r.Device.ID, r.Slug, r.Value, r.Unit, r.Timestamp); err != nil {
			return err
		}
	}

	ids := lo.Uniq(lo.Map(data, func(r model.SensorReading, _ int) string {
		return r.Device.ID
	}))
	if _, err := tx.Exec(ctx, `UPDATE device SET last_seen = $1 WHERE id = ANY($2)`, db.now(), ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *Database) RegisterDevice(ctx context.Context, d *model.Device) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO device (id, kind, model, name, serial_number, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind,
			model = EXCLUDED.model,
			name = EXCLUDED.name,
			serial_number = EXCLUDED.serial_number,
			last_seen = EXCLUDED.last_seen;`,
		d.ID, string(d.Kind), d.Model, d.Name, d.SerialNumber, db.now())
	return err
}

// SaveState stores the last known state of a registered device.
func (db *Database) SaveState(ctx context.Context, deviceID string, state device.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO device_state (device_id, kind, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO UPDATE
		SET kind = EXCLUDED.kind,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at;`,
		deviceID, string(state.Kind()), data, db.now())
	return err
}
