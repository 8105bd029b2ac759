package db

import (
	"context"
	"fmt"
	"time"
)

// ScalerParams returns the persisted engagement scaler, keyed by counter name.
// An empty map means the scaler has never been fitted.
func (d *DB) ScalerParams(ctx context.Context) (map[string]ScalerParam, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT counter, center, scale, fitted_at FROM scaler_params")
	if err != nil {
		return nil, fmt.Errorf("querying scaler params: %w", err)
	}
	defer rows.Close()

	params := make(map[string]ScalerParam)
	for rows.Next() {
		var p ScalerParam
		var fittedAt int64
		if err := rows.Scan(&p.Counter, &p.Center, &p.Scale, &fittedAt); err != nil {
			return nil, err
		}
		p.FittedAt = fromMillis(fittedAt)
		params[p.Counter] = p
	}
	return params, rows.Err()
}

// SaveScalerParams replaces the persisted scaler in one transaction.
func (d *DB) SaveScalerParams(ctx context.Context, params []ScalerParam) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM scaler_params"); err != nil {
		return fmt.Errorf("clearing scaler params: %w", err)
	}
	now := unixMillis(time.Now())
	for _, p := range params {
		fitted := now
		if !p.FittedAt.IsZero() {
			fitted = unixMillis(p.FittedAt)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO scaler_params (counter, center, scale, fitted_at) VALUES (?, ?, ?, ?)",
			p.Counter, p.Center, p.Scale, fitted); err != nil {
			return fmt.Errorf("saving scaler param %s: %w", p.Counter, err)
		}
	}
	return tx.Commit()
}
