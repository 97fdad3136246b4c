// Package dbmigrate applies embedded goose migrations through a pgx pool.
package dbmigrate

import (
	"context"
	"io/fs"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/bizdash/orgsync/migrations"
)

type Status struct {
	Version   int64     `json:"version"`
	Path      string    `json:"path"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

type Runner struct {
	pool *pgxpool.Pool
	fsys fs.FS
	log  *logrus.Logger
}

// NewRunner returns a runner over the org migrations embedded in the binary.
func NewRunner(pool *pgxpool.Pool, log *logrus.Logger) (*Runner, error) {
	fsys, err := fs.Sub(migrations.FS, migrations.OrgDir)
	if err != nil {
		return nil, gerrors.Wrap(err, "open embedded migrations")
	}
	return NewRunnerFS(pool, fsys, log), nil
}

func NewRunnerFS(pool *pgxpool.Pool, fsys fs.FS, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{pool: pool, fsys: fsys, log: log}
}

func (r *Runner) withProvider(ctx context.Context, fn func(*goose.Provider) error) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, r.fsys)
	if err != nil {
		return gerrors.Wrap(err, "create goose provider")
	}
	return fn(provider)
}

// Up applies every pending migration and returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	var applied int
	err := r.withProvider(ctx, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		for _, res := range results {
			if res == nil || res.Source == nil {
				continue
			}
			applied++
			r.log.WithFields(logrus.Fields{
				"version":  res.Source.Version,
				"path":     res.Source.Path,
				"duration": res.Duration.String(),
			}).Info("migration applied")
		}
		if err != nil {
			return gerrors.Wrap(err, "migrate up")
		}
		return nil
	})
	return applied, err
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	return r.withProvider(ctx, func(p *goose.Provider) error {
		res, err := p.Down(ctx)
		if err != nil {
			return gerrors.Wrap(err, "migrate down")
		}
		if res != nil && res.Source != nil {
			r.log.WithFields(logrus.Fields{
				"version": res.Source.Version,
				"path":    res.Source.Path,
			}).Info("migration rolled back")
		}
		return nil
	})
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	var out []Status
	err := r.withProvider(ctx, func(p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return gerrors.Wrap(err, "migration status")
		}
		for _, st := range statuses {
			if st == nil || st.Source == nil {
				continue
			}
			out = append(out, Status{
				Version:   st.Source.Version,
				Path:      st.Source.Path,
				Applied:   st.State == goose.StateApplied,
				AppliedAt: st.AppliedAt,
			})
		}
		return nil
	})
	return out, err
}
