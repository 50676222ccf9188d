package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Postgres reads device rows straight from the registry database.
type Postgres struct {
	db    *sqlx.DB
	query string
}

type pgRow struct {
	DeviceID       string         `db:"imei"`
	UnitLabel      sql.NullString `db:"unit_label"`
	TenantLabel    sql.NullString `db:"tenant_label"`
	SinkEndpoint   sql.NullString `db:"sink_endpoint"`
	SinkCredential sql.NullString `db:"sink_credential"`
}

// OpenPostgres connects using dsn. When dsn carries no password the registry
// credential is used as one.
func OpenPostgres(ctx context.Context, dsn, credential, table string) (*Postgres, error) {
	dsn, err := DSNWithCredential(dsn, credential)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: connect postgres: %w", err)
	}
	return NewPostgres(db, table)
}

// NewPostgres wraps db after validating table.
func NewPostgres(db *sqlx.DB, table string) (*Postgres, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return &Postgres{
		db: db,
		query: fmt.Sprintf(
			"SELECT imei, unit_label, tenant_label, sink_endpoint, sink_credential FROM %s WHERE imei = $1 LIMIT 1",
			table,
		),
	}, nil
}

// Lookup selects the device row by IMEI.
func (p *Postgres) Lookup(ctx context.Context, id avl.Identity) (tenant.RegistryRow, bool, error) {
	var row pgRow
	if err := p.db.GetContext(ctx, &row, p.query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.RegistryRow{}, false, nil
		}
		return tenant.RegistryRow{}, false, fmt.Errorf("registry: query: %w", err)
	}
	return tenant.RegistryRow{
		DeviceID:       row.DeviceID,
		UnitLabel:      row.UnitLabel.String,
		TenantLabel:    row.TenantLabel.String,
		SinkEndpoint:   row.SinkEndpoint.String,
		SinkCredential: row.SinkCredential.String,
	}, true, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// DSNWithCredential injects credential as the password of a URL-form DSN
// that does not already carry one.
func DSNWithCredential(dsn, credential string) (string, error) {
	if credential == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("registry: parse dsn: %w", err)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			return dsn, nil
		}
		u.User = url.UserPassword(u.User.Username(), credential)
		return u.String(), nil
	}
	u.User = url.UserPassword("postgres", credential)
	return u.String(), nil
}
