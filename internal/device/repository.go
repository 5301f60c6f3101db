package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository persists the device catalogue.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns every device ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create returns ErrDeviceExists if the id or slug is taken.
	Create(ctx context.Context, device *Device) error

	// Update returns ErrDeviceNotFound for an unknown id and ErrDeviceExists
	// if the new slug belongs to another device.
	Update(ctx context.Context, device *Device) error

	// Delete returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository stores devices in the bridged_devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, slug, type, location, source_id, vendor_name,
	product_name, auto_bridge, config, created_at, updated_at`

const (
	queryDeviceByID = `SELECT ` + deviceColumns + ` FROM bridged_devices WHERE id = ?`
	queryDevices    = `SELECT ` + deviceColumns + ` FROM bridged_devices ORDER BY name, id`

	insertDevice = `INSERT INTO bridged_devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateDevice = `UPDATE bridged_devices SET
		name = ?, slug = ?, type = ?, location = ?, source_id = ?, vendor_name = ?,
		product_name = ?, auto_bridge = ?, config = ?, updated_at = ?
		WHERE id = ?`

	deleteDevice = `DELETE FROM bridged_devices WHERE id = ?`
)

// GetByID retrieves a device by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, queryDeviceByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, queryDevices)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device, stamping CreatedAt (if unset) and UpdatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	cols, err := columnValues(device)
	if err != nil {
		return err
	}

	args := append([]any{device.ID}, cols...)
	args = append(args, formatTime(device.CreatedAt), formatTime(device.UpdatedAt))
	if _, err := r.db.ExecContext(ctx, insertDevice, args...); err != nil {
		return mapWriteError("inserting device", err)
	}
	return nil
}

// Update rewrites every mutable column and stamps UpdatedAt.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	cols, err := columnValues(device)
	if err != nil {
		return err
	}

	args := append(cols, formatTime(device.UpdatedAt), device.ID)
	result, err := r.db.ExecContext(ctx, updateDevice, args...)
	if err != nil {
		return mapWriteError("updating device", err)
	}
	return checkAffected(result)
}

// Delete removes a device by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, deleteDevice, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return checkAffected(result)
}

// columnValues returns the values for name through config, in column order.
func columnValues(d *Device) ([]any, error) {
	config := "{}"
	if d.Config != nil {
		b, err := json.Marshal(d.Config)
		if err != nil {
			return nil, fmt.Errorf("marshalling config: %w", err)
		}
		config = string(b)
	}

	autoBridge := 0
	if d.AutoBridge {
		autoBridge = 1
	}

	return []any{
		d.Name,
		d.Slug,
		string(d.Type),
		nullable(d.Location),
		nullable(d.SourceID),
		nullable(d.VendorName),
		nullable(d.ProductName),
		autoBridge,
		config,
	}, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                                           Device
		deviceType, config, createdAt, updatedAt    string
		location, sourceID, vendorName, productName sql.NullString
		autoBridge                                  int
	)

	if err := row.Scan(
		&d.ID, &d.Name, &d.Slug, &deviceType,
		&location, &sourceID, &vendorName, &productName,
		&autoBridge, &config, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	d.Type = DeviceType(deviceType)
	d.AutoBridge = autoBridge != 0
	d.Location = fromNullable(location)
	d.SourceID = fromNullable(sourceID)
	d.VendorName = fromNullable(vendorName)
	d.ProductName = fromNullable(productName)

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &d.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &d, nil
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// mapWriteError turns primary key and unique index violations into
// ErrDeviceExists naming the offending column.
func mapWriteError(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) &&
		(sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		// Message form: "UNIQUE constraint failed: bridged_devices.slug"
		if _, column, ok := strings.Cut(sqlErr.Error(), "bridged_devices."); ok {
			return fmt.Errorf("%w: %s is taken", ErrDeviceExists, column)
		}
		return ErrDeviceExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nullable stores nil and empty strings as NULL.
func nullable(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
