package db

import (
	"fmt"
	"time"
)

// ConnectionRecord is one row of the connection history.
type ConnectionRecord struct {
	Address       string    `json:"address"`
	Username      string    `json:"username"`
	LastConnected time.Time `json:"last_connected"`
	ConnectCount  int       `json:"connect_count"`
}

// RecordConnection upserts a history entry for a successful server sync.
func (d *Database) RecordConnection(address, username string) error {
	_, err := d.Exec(`
		INSERT INTO connection_history (address, username, last_connected, connect_count)
		VALUES (?, ?, CURRENT_TIMESTAMP, 1)
		ON CONFLICT (address, username) DO UPDATE SET
			last_connected = CURRENT_TIMESTAMP,
			connect_count  = connect_count + 1`,
		address, username)
	if err != nil {
		return fmt.Errorf("failed to record connection: %w", err)
	}
	return nil
}

// ConnectionHistory returns the most recent history entries.
func (d *Database) ConnectionHistory(limit int) ([]ConnectionRecord, error) {
	rows, err := d.Query(`
		SELECT address, username, last_connected, connect_count
		FROM connection_history
		ORDER BY last_connected DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection history: %w", err)
	}
	defer rows.Close()

	var records []ConnectionRecord
	for rows.Next() {
		var r ConnectionRecord
		if err := rows.Scan(&r.Address, &r.Username, &r.LastConnected, &r.ConnectCount); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SetVolumeOverride persists a per-user playback volume.
func (d *Database) SetVolumeOverride(userName string, volume float32) error {
	_, err := d.Exec(`
		INSERT INTO volume_overrides (user_name, volume, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_name) DO UPDATE SET
			volume     = excluded.volume,
			updated_at = CURRENT_TIMESTAMP`,
		userName, volume)
	if err != nil {
		return fmt.Errorf("failed to set volume override: %w", err)
	}
	return nil
}

// DeleteVolumeOverride removes a per-user playback volume.
func (d *Database) DeleteVolumeOverride(userName string) error {
	if _, err := d.Exec(`DELETE FROM volume_overrides WHERE user_name = ?`, userName); err != nil {
		return fmt.Errorf("failed to delete volume override: %w", err)
	}
	return nil
}

// VolumeOverrides returns all persisted per-user playback volumes.
func (d *Database) VolumeOverrides() (map[string]float32, error) {
	rows, err := d.Query(`SELECT user_name, volume FROM volume_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]float32)
	for rows.Next() {
		var name string
		var volume float32
		if err := rows.Scan(&name, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan volume row: %w", err)
		}
		overrides[name] = volume
	}
	return overrides, rows.Err()
}
