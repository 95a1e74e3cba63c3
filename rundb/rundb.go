// Package rundb persists the per-bond diagnostics of sweeps in SQLite.
package rundb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/tdvp"
)

const (
	tableSweep = "sweep"
)

// DB stores sweep diagnostics.
type DB struct {
	Path string
	db   *sql.DB
}

// Open opens the database at path, dropping any previous content.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &DB{Path: path, db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// InsertSweep stores the diagnostics of one sweep.
// Records are kept in order through their sequence number.
func (d *DB) InsertSweep(step int, backward bool, recs []tdvp.BondInfo) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (step, backward, seq, site, dt_re, dt_im, iterations, matvecs, converged, norm, bond_dim, trunc_err, energy_re, energy_im) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableSweep)
	b := 0
	if backward {
		b = 1
	}
	for seq, r := range recs {
		converged := 0
		if r.Converged {
			converged = 1
		}
		args := []any{step, b, seq, r.Site, real(r.Dt), imag(r.Dt), r.Iterations, r.Matvecs, converged, r.Norm, r.BondDim, r.TruncErr, real(r.Energy), imag(r.Energy)}
		if _, err := d.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
		}
	}
	return nil
}

// Sweep reads back the diagnostics of one sweep.
func (d *DB) Sweep(step int, backward bool) ([]tdvp.BondInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	b := 0
	if backward {
		b = 1
	}
	sqlStr := fmt.Sprintf(`SELECT site, dt_re, dt_im, iterations, matvecs, converged, norm, bond_dim, trunc_err, energy_re, energy_im FROM %s WHERE step=? AND backward=? ORDER BY seq`, tableSweep)
	rows, err := d.db.QueryContext(ctx, sqlStr, step, b)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	var recs []tdvp.BondInfo
	for rows.Next() {
		var r tdvp.BondInfo
		var dtRe, dtIm, eRe, eIm float64
		var converged int
		if err := rows.Scan(&r.Site, &dtRe, &dtIm, &r.Iterations, &r.Matvecs, &converged, &r.Norm, &r.BondDim, &r.TruncErr, &eRe, &eIm); err != nil {
			return nil, errors.Wrap(err, "")
		}
		r.Dt = complex(float32(dtRe), float32(dtIm))
		r.Energy = complex(float32(eRe), float32(eIm))
		r.Converged = converged != 0
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return recs, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableSweep)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE %s (step INTEGER, backward INTEGER, seq INTEGER, site INTEGER, dt_re REAL, dt_im REAL, iterations INTEGER, matvecs INTEGER, converged INTEGER, norm REAL, bond_dim INTEGER, trunc_err REAL, energy_re REAL, energy_im REAL, PRIMARY KEY (step, backward, seq)) STRICT`, tableSweep)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
