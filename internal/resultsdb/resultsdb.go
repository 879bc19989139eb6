/*
Copyright © 2024 the EcoTree authors.
This file is part of EcoTree.

EcoTree is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EcoTree is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EcoTree.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package resultsdb stores gridded model runs in a SQLite database.
package resultsdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spatialmodel/ecotree"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB is a results database.
type DB struct {
	*sql.DB

	// now gives the creation time of saved runs.
	now func() time.Time
}

// Open opens or creates the database at path and makes sure the schema
// exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("resultsdb: %v", err)
	}
	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("resultsdb: creating schema: %v", err)
	}
	return &DB{DB: db, now: time.Now}, nil
}

// Run is a summary of a stored model run.
type Run struct {
	ID          string
	Created     time.Time
	Fingerprint string
	NumTrees    int
	Rows, Cols  int
	GridSize    float64
	X0, Y0      float64
	Boundary    string
	Ambient     ecotree.Ambient
	Totals      map[ecotree.Metric]float64
}

// Cell holds the stored results for a single grid cell.
type Cell struct {
	Row, Col int
	NumTrees float64
	Values   map[ecotree.Metric]float64
}

// Save stores the results of d under a new run ID, which it returns.
// Only cells containing at least one tree are stored.
func (db *DB) Save(ctx context.Context, d *ecotree.Domain, fingerprint string) (string, error) {
	if d.Results == nil || d.Grid == nil {
		return "", fmt.Errorf("resultsdb: domain has no results")
	}
	id := uuid.New().String()
	t := d.Results.Totals()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("resultsdb: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, fingerprint, num_trees, grid_rows, grid_cols,
			grid_size, x0, y0, boundary, pm10, o3,
			total_ofp, total_pm10_dep, total_o3_removed, total_net_o3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, db.now().UnixNano(), fingerprint, len(d.Trees),
		d.Grid.Rows, d.Grid.Cols, d.Grid.Size, d.Grid.X0, d.Grid.Y0, d.Grid.Policy.String(),
		d.Ambient.PM10, d.Ambient.O3,
		t[ecotree.OFP], t[ecotree.PM10], t[ecotree.O3Removed], t[ecotree.NetO3])
	if err != nil {
		return "", fmt.Errorf("resultsdb: inserting run: %v", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells (run_id, grid_row, grid_col, num_trees, ofp, pm10_dep, o3_removed, net_o3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("resultsdb: %v", err)
	}
	defer stmt.Close()

	r := d.Results
	for i, c := range d.Grid.Cells {
		n := r.NumTrees.Elements[i]
		if n == 0 {
			continue
		}
		_, err = stmt.ExecContext(ctx, id, c.Row, c.Col, n,
			r.Grid(ecotree.OFP).Elements[i], r.Grid(ecotree.PM10).Elements[i],
			r.Grid(ecotree.O3Removed).Elements[i], r.Grid(ecotree.NetO3).Elements[i])
		if err != nil {
			return "", fmt.Errorf("resultsdb: inserting cell (%d, %d): %v", c.Row, c.Col, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("resultsdb: %v", err)
	}
	return id, nil
}

// Store returns a function that saves the domain results, passing the
// new run ID to saved if it is not nil.
func (db *DB) Store(ctx context.Context, fingerprint string, saved func(id string)) ecotree.DomainManipulator {
	return func(d *ecotree.Domain) error {
		id, err := db.Save(ctx, d, fingerprint)
		if err != nil {
			return err
		}
		if saved != nil {
			saved(id)
		}
		return nil
	}
}

// Runs returns all stored runs, oldest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, fingerprint, num_trees, grid_rows, grid_cols, grid_size,
			x0, y0, boundary, pm10, o3,
			total_ofp, total_pm10_dep, total_o3_removed, total_net_o3
		FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("resultsdb: querying runs: %v", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created int64
		var ofp, pm, o3r, net float64
		if err := rows.Scan(&r.ID, &created, &r.Fingerprint, &r.NumTrees, &r.Rows, &r.Cols,
			&r.GridSize, &r.X0, &r.Y0, &r.Boundary, &r.Ambient.PM10, &r.Ambient.O3,
			&ofp, &pm, &o3r, &net); err != nil {
			return nil, fmt.Errorf("resultsdb: %v", err)
		}
		r.Created = time.Unix(0, created).UTC()
		r.Totals = map[ecotree.Metric]float64{
			ecotree.OFP: ofp, ecotree.PM10: pm, ecotree.O3Removed: o3r, ecotree.NetO3: net,
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Cells returns the stored cells of a run in row-major order.
func (db *DB) Cells(ctx context.Context, runID string) ([]Cell, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT grid_row, grid_col, num_trees, ofp, pm10_dep, o3_removed, net_o3
		FROM cells WHERE run_id = ? ORDER BY grid_row, grid_col`, runID)
	if err != nil {
		return nil, fmt.Errorf("resultsdb: querying cells: %v", err)
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		var c Cell
		var ofp, pm, o3r, net float64
		if err := rows.Scan(&c.Row, &c.Col, &c.NumTrees, &ofp, &pm, &o3r, &net); err != nil {
			return nil, fmt.Errorf("resultsdb: %v", err)
		}
		c.Values = map[ecotree.Metric]float64{
			ecotree.OFP: ofp, ecotree.PM10: pm, ecotree.O3Removed: o3r, ecotree.NetO3: net,
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
