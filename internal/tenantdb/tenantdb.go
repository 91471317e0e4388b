// Package tenantdb manages relational connections for a
// database-per-tenant layout: one control database holding the
// organization catalog and the tenant registry, plus one database per
// tenant on the same server. Tenant pools are created lazily, cached, and
// pinged before reuse.
package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assessly/assessly/internal/config"
	"github.com/assessly/assessly/internal/store"
)

// maxAuthAttempts bounds credential refresh retries per operation.
const maxAuthAttempts = 3

// CredentialSource derives the DSN for a tenant database. Connection
// credentials can rotate at any time; the manager re-derives the DSN and
// rebuilds the pool whenever the server rejects authentication.
type CredentialSource interface {
	TenantDSN(ctx context.Context, dbName string) (string, error)
}

// StaticCredentials reuses the control connection's credentials for every
// tenant database, swapping only the database name.
type StaticCredentials struct {
	ControlURL string
}

func (s StaticCredentials) TenantDSN(_ context.Context, dbName string) (string, error) {
	u, err := url.Parse(s.ControlURL)
	if err != nil {
		return "", fmt.Errorf("parse control URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

// Manager owns the control pool and a cache of per-tenant pools.
type Manager struct {
	cfg   config.ControlDBConfig
	creds CredentialSource

	control *pgxpool.Pool

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewManager connects to the control database. creds may be nil, in which
// case tenant databases are reached with the control credentials.
func NewManager(ctx context.Context, cfg config.ControlDBConfig, creds CredentialSource) (*Manager, error) {
	if creds == nil {
		creds = StaticCredentials{ControlURL: cfg.URL}
	}

	control, err := connect(ctx, cfg.URL, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect control database: %w", err)
	}

	return &Manager{
		cfg:     cfg,
		creds:   creds,
		control: control,
		pools:   make(map[string]*pgxpool.Pool),
	}, nil
}

func connect(ctx context.Context, databaseURL string, cfg config.ControlDBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Control returns the control database pool.
func (m *Manager) Control() *pgxpool.Pool {
	return m.control
}

// RunControlSchema applies the control database migrations.
func (m *Manager) RunControlSchema(_ context.Context) error {
	return runMigrations(m.cfg.URL, "control")
}

// GetConnection returns the pool for the given tenant. The empty string
// and "default" address the control database. A tenant that has never
// been provisioned reports store.ErrTenantNotProvisioned.
func (m *Manager) GetConnection(ctx context.Context, tenant string) (*pgxpool.Pool, error) {
	if tenant == "" || tenant == "default" {
		return m.control, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if pool, ok := m.pools[tenant]; ok {
		if err := pool.Ping(ctx); err == nil {
			return pool, nil
		}
		pool.Close()
		delete(m.pools, tenant)
	}

	dbName, err := m.lookupDatabase(ctx, tenant)
	if err != nil {
		return nil, err
	}

	dsn, err := m.creds.TenantDSN(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("derive tenant DSN: %w", err)
	}

	pool, err := connect(ctx, dsn, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect tenant %s: %w", tenant, err)
	}
	m.pools[tenant] = pool
	return pool, nil
}

func (m *Manager) lookupDatabase(ctx context.Context, tenant string) (string, error) {
	var dbName string
	err := m.control.QueryRow(ctx,
		`SELECT db_name FROM tenant_databases WHERE domain = $1`, tenant).Scan(&dbName)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("tenant %s: %w", tenant, store.ErrTenantNotProvisioned)
	}
	if err != nil {
		return "", fmt.Errorf("lookup tenant database: %w", err)
	}
	return dbName, nil
}

// Do runs fn against the tenant's pool. An authentication failure drops
// the cached pool, re-derives credentials and retries the whole operation;
// after maxAuthAttempts the error is wrapped with store.ErrAuthExpired.
// Non-auth errors return immediately.
func (m *Manager) Do(ctx context.Context, tenant string, fn func(*pgxpool.Pool) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		pool, err := m.GetConnection(ctx, tenant)
		if err != nil {
			if !IsAuthError(err) {
				return err
			}
			lastErr = err
			m.discard(tenant)
			continue
		}

		err = fn(pool)
		if err == nil || !IsAuthError(err) {
			return err
		}
		slog.Warn("tenant database auth failure, refreshing credentials",
			"tenant", tenant, "attempt", attempt)
		lastErr = err
		m.discard(tenant)
	}
	return fmt.Errorf("tenant %s: %w: %w", tenant, store.ErrAuthExpired, lastErr)
}

func (m *Manager) discard(tenant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pool, ok := m.pools[tenant]; ok {
		pool.Close()
		delete(m.pools, tenant)
	}
}

// Provision ensures the tenant's database exists, is registered, and has
// the current schema. It is idempotent: an already registered tenant only
// re-applies pending migrations. Concurrent provisions of the same tenant
// are serialized by the registry's primary key and the duplicate-database
// check.
func (m *Manager) Provision(ctx context.Context, tenant string) error {
	if tenant == "" || tenant == "default" {
		return fmt.Errorf("cannot provision reserved tenant name %q", tenant)
	}

	dbName, err := m.lookupDatabase(ctx, tenant)
	if errors.Is(err, store.ErrTenantNotProvisioned) {
		dbName = DatabaseName(tenant)
		if err := m.createDatabase(ctx, tenant, dbName); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	dsn, err := m.creds.TenantDSN(ctx, dbName)
	if err != nil {
		return fmt.Errorf("derive tenant DSN: %w", err)
	}
	if err := runMigrations(dsn, "tenant"); err != nil {
		return fmt.Errorf("migrate tenant %s: %w", tenant, err)
	}

	slog.Info("tenant provisioned", "tenant", tenant, "database", dbName)
	return nil
}

func (m *Manager) createDatabase(ctx context.Context, tenant, dbName string) error {
	// CREATE DATABASE cannot run in a transaction; a concurrent provision
	// losing the race surfaces as duplicate_database, which is fine.
	_, err := m.control.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize())
	if err != nil && !isDuplicateDatabase(err) {
		return fmt.Errorf("create tenant database: %w", err)
	}

	_, err = m.control.Exec(ctx,
		`INSERT INTO tenant_databases (domain, db_name) VALUES ($1, $2)
		 ON CONFLICT (domain) DO NOTHING`, tenant, dbName)
	if err != nil {
		return fmt.Errorf("register tenant database: %w", err)
	}
	return nil
}

// ResetAllData truncates every tenant's data and the organization catalog.
// The tenant registry and all schemas stay in place. Test helper only.
func (m *Manager) ResetAllData(ctx context.Context) error {
	rows, err := m.control.Query(ctx, `SELECT domain FROM tenant_databases`)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, tenant := range tenants {
		err := m.Do(ctx, tenant, func(pool *pgxpool.Pool) error {
			_, err := pool.Exec(ctx, `TRUNCATE assessments, findings CASCADE`)
			return err
		})
		if err != nil {
			return fmt.Errorf("reset tenant %s: %w", tenant, err)
		}
	}

	if _, err := m.control.Exec(ctx, `TRUNCATE organizations`); err != nil {
		return fmt.Errorf("reset organizations: %w", err)
	}
	return nil
}

// CloseAll closes every tenant pool and the control pool.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	for tenant, pool := range m.pools {
		pool.Close()
		delete(m.pools, tenant)
	}
	m.mu.Unlock()
	m.control.Close()
}

// DatabaseName derives the tenant database name from the tenant domain.
// Postgres identifiers are case-folded and capped at 63 bytes.
func DatabaseName(tenant string) string {
	var b strings.Builder
	b.WriteString("tenant_")
	for _, r := range strings.ToLower(tenant) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// IsAuthError reports whether err is a server authentication rejection.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "28000" || pgErr.Code == "28P01"
	}
	return strings.Contains(err.Error(), "password authentication failed")
}

func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P04"
}
