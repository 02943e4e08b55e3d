package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateExperiment(ctx context.Context, name, description string, variants []Variant) (*Experiment, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: experiment name is required", ErrInvalidInput)
	}
	if len(variants) < 2 {
		return nil, fmt.Errorf("%w: an experiment needs at least 2 variants", ErrInvalidInput)
	}
	for i, v := range variants {
		if v.Algorithm == "" {
			return nil, fmt.Errorf("%w: variant %d has no algorithm", ErrInvalidInput, i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Unix()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO experiments (name, description, active, start_at, created_at, updated_at)
		 VALUES (?, ?, 0, 0, ?, ?)`,
		name, description, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment id: %w", err)
	}

	exp := &Experiment{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   time.Unix(now, 0),
		UpdatedAt:   time.Unix(now, 0),
	}
	for i, v := range variants {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO experiment_variants (experiment_id, position, algorithm, title)
			 VALUES (?, ?, ?, ?)`,
			id, i, v.Algorithm, v.Title,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert variant: %w", err)
		}
		vid, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get variant id: %w", err)
		}
		exp.Variants = append(exp.Variants, Variant{ID: vid, Algorithm: v.Algorithm, Title: v.Title, Position: i})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	exp, err := s.scanExperiment(s.db.QueryRowContext(ctx,
		`SELECT id, name, description, active, start_at, end_at, created_at, updated_at
		 FROM experiments WHERE id = ?`, id,
	))
	if err != nil {
		return nil, err
	}
	if err := s.loadVariants(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// ActiveExperiment returns the single active experiment, or ErrNotFound when
// none is running.
func (s *SQLiteStore) ActiveExperiment(ctx context.Context) (*Experiment, error) {
	exp, err := s.scanExperiment(s.db.QueryRowContext(ctx,
		`SELECT id, name, description, active, start_at, end_at, created_at, updated_at
		 FROM experiments WHERE active = 1 LIMIT 1`,
	))
	if err != nil {
		return nil, err
	}
	if err := s.loadVariants(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, active, start_at, end_at, created_at, updated_at
		 FROM experiments ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*Experiment
	for rows.Next() {
		exp, err := s.scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, exp := range exps {
		if err := s.loadVariants(ctx, exp); err != nil {
			return nil, err
		}
	}
	return exps, nil
}

// ActivateExperiment deactivates every experiment and activates the target
// with a fresh start time, all within one transaction. Concurrent activations
// serialize on the write transaction so exactly one experiment ends up active.
func (s *SQLiteStore) ActivateExperiment(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var endAt sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT end_at FROM experiments WHERE id = ?`, id).Scan(&endAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load experiment: %w", err)
	}
	if endAt.Valid {
		return fmt.Errorf("%w: experiment has ended", ErrInvalidInput)
	}

	now := s.now().Unix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE experiments SET active = 0, updated_at = ? WHERE active = 1`, now,
	); err != nil {
		return fmt.Errorf("failed to deactivate experiments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE experiments SET active = 1, start_at = ?, updated_at = ? WHERE id = ?`, now, now, id,
	); err != nil {
		return fmt.Errorf("failed to activate experiment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	return nil
}

// EndExperiment marks the experiment ended. Ended is terminal.
func (s *SQLiteStore) EndExperiment(ctx context.Context, id int64) error {
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET active = 0, end_at = ?, updated_at = ? WHERE id = ? AND end_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end experiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		// Either unknown or already ended; distinguish for the caller.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM experiments WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("%w: experiment has already ended", ErrInvalidInput)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var active int
	var startAt, createdAt, updatedAt int64
	var endAt sql.NullInt64

	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &active, &startAt, &endAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	exp.Active = active == 1
	if startAt > 0 {
		exp.StartAt = time.Unix(startAt, 0)
	}
	if endAt.Valid {
		t := time.Unix(endAt.Int64, 0)
		exp.EndAt = &t
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)
	return &exp, nil
}

func (s *SQLiteStore) loadVariants(ctx context.Context, exp *Experiment) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, algorithm, title FROM experiment_variants
		 WHERE experiment_id = ? ORDER BY position`, exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.Position, &v.Algorithm, &v.Title); err != nil {
			return fmt.Errorf("failed to scan variant: %w", err)
		}
		exp.Variants = append(exp.Variants, v)
	}
	return rows.Err()
}
