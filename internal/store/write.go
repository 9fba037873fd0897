package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/ir"
)

// TableInfo summarises one stored table.
type TableInfo struct {
	Name       string `json:"name"`
	Seq        int64  `json:"seq"`
	Rows       int    `json:"rows"`
	Dropped    int    `json:"dropped"`
	Duplicates int    `json:"duplicates"`
}

// WriteTable stores a compiled table under name, replacing any table of
// the same name. Rows keep their slice order.
//
// The write runs in one transaction; a failure leaves the previous
// version of the table intact.
func (s *Store) WriteTable(ctx context.Context, name string, res breakpoint.MergeResult) (TableInfo, error) {
	if name == "" {
		return TableInfo{}, fmt.Errorf("write table: name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TableInfo{}, fmt.Errorf("write table: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM breakpoint_tables WHERE name = ?`, name); err != nil {
		return TableInfo{}, fmt.Errorf("write table: delete previous: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM breakpoint_tables`).Scan(&seq); err != nil {
		return TableInfo{}, fmt.Errorf("write table: next seq: %w", err)
	}

	info := TableInfo{
		Name:       name,
		Seq:        seq,
		Rows:       len(res.Records),
		Dropped:    len(res.Dropped),
		Duplicates: len(res.Duplicates),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO breakpoint_tables (name, seq, row_count, dropped, duplicates)
		VALUES (?, ?, ?, ?, ?)
	`, info.Name, info.Seq, info.Rows, info.Dropped, info.Duplicates)
	if err != nil {
		return TableInfo{}, fmt.Errorf("write table: %w", err)
	}

	if err := insertRecords(ctx, tx, name, res.Records); err != nil {
		return TableInfo{}, err
	}
	if err := insertDropped(ctx, tx, name, res.Dropped); err != nil {
		return TableInfo{}, err
	}

	if err := tx.Commit(); err != nil {
		return TableInfo{}, fmt.Errorf("write table: commit: %w", err)
	}
	return info, nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, table string, records []ir.BreakpointRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO breakpoints
		(table_name, row_index, id, organism, compound, s_threshold, r_threshold,
		 exception, route, indication, high_exposure, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write breakpoints: prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			table, i, r.ID(), r.Organism, r.Compound, r.SThreshold, r.RThreshold,
			r.Exception, r.Route, r.Indication, r.HighExposure, string(r.Source),
		)
		if err != nil {
			return fmt.Errorf("write breakpoints: row %d (%s): %w", i, r.Combination(), err)
		}
	}
	return nil
}

func insertDropped(ctx context.Context, tx *sql.Tx, table string, dropped []breakpoint.Dropped) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dropped_breakpoints
		(table_name, row_index, reason, id, organism, compound, s_threshold, r_threshold,
		 exception, route, indication, high_exposure, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write dropped: prepare: %w", err)
	}
	defer stmt.Close()

	for i, d := range dropped {
		r := d.Record
		_, err := stmt.ExecContext(ctx,
			table, i, string(d.Reason), r.ID(), r.Organism, r.Compound, r.SThreshold, r.RThreshold,
			r.Exception, r.Route, r.Indication, r.HighExposure, string(r.Source),
		)
		if err != nil {
			return fmt.Errorf("write dropped: row %d (%s): %w", i, r.Combination(), err)
		}
	}
	return nil
}

// DeleteTable removes a table and its rows. Deleting a missing table is a
// no-op; deleted reports whether a table was removed.
func (s *Store) DeleteTable(ctx context.Context, name string) (deleted bool, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM breakpoint_tables WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete table: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete table: rows affected: %w", err)
	}
	return n > 0, nil
}
