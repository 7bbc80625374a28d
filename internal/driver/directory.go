// Package driver looks up the identifying details responders need about a
// driver. Driver accounts are owned by the surrounding platform; this package
// only reads them.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"saferide/internal/escalation/models"
	"saferide/internal/platform/postgres"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// InMemory is a directory for tests and single-instance runs.
type InMemory struct {
	mu      sync.RWMutex
	drivers map[id.DriverID]models.DriverInfo
}

func NewInMemory() *InMemory {
	return &InMemory{drivers: make(map[id.DriverID]models.DriverInfo)}
}

func (d *InMemory) Put(driverID id.DriverID, info models.DriverInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drivers[driverID] = info
}

func (d *InMemory) Lookup(_ context.Context, driverID id.DriverID) (models.DriverInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.drivers[driverID]
	if !ok {
		return models.DriverInfo{}, sentinel.ErrNotFound
	}
	return info, nil
}

// Postgres reads the platform's drivers table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (d *Postgres) Lookup(ctx context.Context, driverID id.DriverID) (models.DriverInfo, error) {
	var info models.DriverInfo
	err := d.db.QueryRowContext(ctx, `
		SELECT full_name, vehicle_description, plate FROM drivers WHERE id = $1
	`, driverID).Scan(&info.Name, &info.Vehicle, &info.Plate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DriverInfo{}, sentinel.ErrNotFound
		}
		return models.DriverInfo{}, postgres.Wrap("lookup driver", err)
	}
	return info, nil
}
