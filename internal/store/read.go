package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vicbeneder/micruler/internal/breakpoint"
	"github.com/vicbeneder/micruler/internal/ir"
)

// ErrTableNotFound is returned when a named table does not exist.
var ErrTableNotFound = errors.New("breakpoint table not found")

// Tables lists the stored tables ordered by name.
//
// Returns an empty slice (not nil) if the database holds no tables.
func (s *Store) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, seq, row_count, dropped, duplicates
		FROM breakpoint_tables
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	tables := []TableInfo{}
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.Seq, &t.Rows, &t.Dropped, &t.Duplicates); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// Latest returns the most recently written table.
func (s *Store) Latest(ctx context.Context) (TableInfo, error) {
	var t TableInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT name, seq, row_count, dropped, duplicates
		FROM breakpoint_tables
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&t.Name, &t.Seq, &t.Rows, &t.Dropped, &t.Duplicates)
	if errors.Is(err, sql.ErrNoRows) {
		return TableInfo{}, ErrTableNotFound
	}
	if err != nil {
		return TableInfo{}, fmt.Errorf("query latest table: %w", err)
	}
	return t, nil
}

// ReadTable returns the rows of a table in table order.
func (s *Store) ReadTable(ctx context.Context, name string) ([]ir.BreakpointRecord, error) {
	if err := s.tableExists(ctx, name); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT organism, compound, s_threshold, r_threshold,
		       exception, route, indication, high_exposure, source
		FROM breakpoints
		WHERE table_name = ?
		ORDER BY row_index ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query breakpoints: %w", err)
	}
	defer rows.Close()

	records := []ir.BreakpointRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate breakpoints: %w", err)
	}
	return records, nil
}

// ReadIndex loads a table and builds a resolver index over it.
func (s *Store) ReadIndex(ctx context.Context, name string) (*breakpoint.Index, error) {
	records, err := s.ReadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return breakpoint.NewIndex(records), nil
}

// ReadDropped returns the rows removed when the table was compiled, in the
// order the merge removed them.
func (s *Store) ReadDropped(ctx context.Context, name string) ([]breakpoint.Dropped, error) {
	if err := s.tableExists(ctx, name); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT organism, compound, s_threshold, r_threshold,
		       exception, route, indication, high_exposure, source, reason
		FROM dropped_breakpoints
		WHERE table_name = ?
		ORDER BY row_index ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query dropped: %w", err)
	}
	defer rows.Close()

	dropped := []breakpoint.Dropped{}
	for rows.Next() {
		var d breakpoint.Dropped
		var source, reason string
		r := &d.Record
		if err := rows.Scan(&r.Organism, &r.Compound, &r.SThreshold, &r.RThreshold,
			&r.Exception, &r.Route, &r.Indication, &r.HighExposure, &source, &reason); err != nil {
			return nil, fmt.Errorf("scan dropped: %w", err)
		}
		r.Source = ir.Source(source)
		d.Reason = breakpoint.DropReason(reason)
		dropped = append(dropped, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dropped: %w", err)
	}
	return dropped, nil
}

// Lookup returns the rows of a table for one organism/compound pair in
// table order. Names are compared exactly.
func (s *Store) Lookup(ctx context.Context, name, organism, compound string) ([]ir.BreakpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organism, compound, s_threshold, r_threshold,
		       exception, route, indication, high_exposure, source
		FROM breakpoints
		WHERE table_name = ? AND organism = ? AND compound = ?
		ORDER BY row_index ASC
	`, name, organism, compound)
	if err != nil {
		return nil, fmt.Errorf("query lookup: %w", err)
	}
	defer rows.Close()

	records := []ir.BreakpointRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lookup: %w", err)
	}
	return records, nil
}

func (s *Store) tableExists(ctx context.Context, name string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM breakpoint_tables WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", name, ErrTableNotFound)
	}
	if err != nil {
		return fmt.Errorf("query table: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (ir.BreakpointRecord, error) {
	var r ir.BreakpointRecord
	var source string
	if err := rows.Scan(&r.Organism, &r.Compound, &r.SThreshold, &r.RThreshold,
		&r.Exception, &r.Route, &r.Indication, &r.HighExposure, &source); err != nil {
		return r, fmt.Errorf("scan breakpoint: %w", err)
	}
	r.Source = ir.Source(source)
	return r, nil
}
