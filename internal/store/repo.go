package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Repository is the device registry: one row per vendor device plus its last published state.
type Repository struct {
	db *gorm.DB
}

type DeviceState struct {
	DeviceID  string          `gorm:"primaryKey"`
	State     json.RawMessage `gorm:"type:text"`
	UpdatedAt time.Time
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
}

func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&model.Device{}, &DeviceState{}); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// UpsertDevice keeps the registry id of an already known external device.
func (r *Repository) UpsertDevice(ctx context.Context, d *model.Device) error {
	existing, err := r.GetByExternal(ctx, d.Protocol, d.ExternalID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if existing != nil {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if existing == nil {
		return r.db.WithContext(ctx).Create(d).Error
	}
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *Repository) GetByExternal(ctx context.Context, protocol, externalID string) (*model.Device, error) {
	var dev model.Device
	if err := r.db.WithContext(ctx).Where(&model.Device{Protocol: protocol, ExternalID: externalID}).First(&dev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dev, nil
}

func (r *Repository) List(ctx context.Context, protocol string) ([]model.Device, error) {
	var devices []model.Device
	if err := r.db.WithContext(ctx).Where(&model.Device{Protocol: protocol}).Order("name").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// SetOnline records availability; last_seen only moves forward while the device is online.
func (r *Repository) SetOnline(ctx context.Context, protocol, externalID string, online bool) error {
	updates := map[string]any{"online": online}
	if online {
		updates["last_seen"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&model.Device{}).
		Where(&model.Device{Protocol: protocol, ExternalID: externalID}).
		Updates(updates).Error
}

func (r *Repository) SaveDeviceState(ctx context.Context, deviceID string, state json.RawMessage) error {
	ds := &DeviceState{DeviceID: deviceID, State: state, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(ds).Error
}

func (r *Repository) GetDeviceState(ctx context.Context, deviceID string) (json.RawMessage, error) {
	var ds DeviceState
	if err := r.db.WithContext(ctx).Where(&DeviceState{DeviceID: deviceID}).First(&ds).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ds.State, nil
}

// DeleteDevicesNotIn removes devices of protocol the vendor no longer lists, with their states.
// stateID maps a removed device to the id its state row was stored under.
func (r *Repository) DeleteDevicesNotIn(ctx context.Context, protocol string, keepExternalIDs []string, stateID func(model.Device) string) ([]model.Device, error) {
	if protocol == "" {
		return nil, nil
	}
	keep := slices.Compact(slices.Sorted(slices.Values(keepExternalIDs)))
	var removed []model.Device
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&model.Device{}).Where(&model.Device{Protocol: protocol})
		if len(keep) > 0 {
			query = query.Where(clause.Not(clause.IN{Column: clause.Column{Name: "external_id"}, Values: toAnySlice(keep)}))
		}
		if err := query.Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		ids := make([]string, len(removed))
		stateIDs := make([]string, 0, len(removed))
		for i, dev := range removed {
			ids[i] = dev.ID.String()
			if stateID != nil {
				stateIDs = append(stateIDs, stateID(dev))
			}
		}
		if len(stateIDs) > 0 {
			if err := tx.Where(clause.IN{Column: clause.Column{Name: "device_id"}, Values: toAnySlice(stateIDs)}).Delete(&DeviceState{}).Error; err != nil {
				return err
			}
		}
		return tx.Where(clause.IN{Column: clause.Column{Name: "id"}, Values: toAnySlice(ids)}).Delete(&model.Device{}).Error
	})
	return removed, err
}
