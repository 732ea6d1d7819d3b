package field

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/postgres"
)

const fieldsSchema = `CREATE TABLE IF NOT EXISTS lexicon_fields (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	attrs      TEXT NOT NULL,
	value_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGRegistry persists field definitions in PostgreSQL and serves lookups
// from an in-memory copy.
type PGRegistry struct {
	db     *postgres.Client
	cache  *Registry
	logger *slog.Logger
}

// NewPGRegistry creates the fields table when missing and loads every
// committed definition.
func NewPGRegistry(ctx context.Context, db *postgres.Client) (*PGRegistry, error) {
	if err := db.Migrate(ctx, fieldsSchema); err != nil {
		return nil, err
	}
	r := &PGRegistry{
		db:     db,
		cache:  NewRegistry(),
		logger: slog.Default().With("component", "field-registry"),
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the in-memory copy with the committed definitions.
func (r *PGRegistry) Reload(ctx context.Context) error {
	rows, err := r.db.DB.QueryContext(ctx, `SELECT id, name, attrs, value_type FROM lexicon_fields ORDER BY id`)
	if err != nil {
		return fmt.Errorf("querying fields: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading fields: %w", err)
	}
	r.cache.replace(infos)
	r.logger.Info("field definitions loaded", "fields", len(infos))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(s scanner) (Info, error) {
	var (
		info        Info
		attrs, kind string
	)
	if err := s.Scan(&info.ID, &info.Name, &attrs, &kind); err != nil {
		return Info{}, fmt.Errorf("scanning field: %w", err)
	}
	a, err := ParseAttributes(attrs)
	if err != nil {
		return Info{}, err
	}
	t, err := ParseValueType(kind)
	if err != nil {
		return Info{}, err
	}
	info.Attrs, info.Type = a, t
	return info, nil
}

// Define commits info unless a conflicting definition exists. The existing
// row is locked so concurrent definers agree on the outcome.
func (r *PGRegistry) Define(ctx context.Context, info Info) (Info, error) {
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	if existing, ok := r.cache.Field(info.Name); ok {
		if err := sameDefinition(existing, info); err != nil {
			return Info{}, err
		}
		return existing, nil
	}

	var out Info
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanInfo(tx.QueryRowContext(ctx,
			`SELECT id, name, attrs, value_type FROM lexicon_fields WHERE name=$1 FOR UPDATE`, info.Name))
		if err == nil {
			if err := sameDefinition(existing, info); err != nil {
				return err
			}
			out = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		out = info
		return tx.QueryRowContext(ctx,
			`INSERT INTO lexicon_fields (name, attrs, value_type) VALUES ($1, $2, $3) RETURNING id`,
			info.Name, info.Attrs.String(), info.Type.String()).Scan(&out.ID)
	})
	if err != nil {
		return Info{}, fmt.Errorf("defining field %s: %w", info.Name, err)
	}
	r.cache.replace(append(r.cache.Fields(), out))
	r.logger.Info("field defined", "field", out.Name, "id", out.ID, "attrs", out.Attrs.String())
	return out, nil
}

func (r *PGRegistry) Field(name string) (Info, bool) { return r.cache.Field(name) }

func (r *PGRegistry) FieldByID(id int32) (Info, bool) { return r.cache.FieldByID(id) }

func (r *PGRegistry) Fields() []Info { return r.cache.Fields() }
