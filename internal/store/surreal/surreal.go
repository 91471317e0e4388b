// Package surreal implements the store interfaces against SurrealDB, the
// document engine. Every record carries explicit pk (partition) and sk
// (sort) fields derived by internal/keys; all queries are parameterized
// SurrealQL filtered by pk and ordered by sk, which is the engine's natural
// key order for listings.
package surreal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/assessly/assessly/internal/config"
)

// nativePageSize is the engine page size used for internal re-querying.
// Externally observed page sizes are controlled by the caller's limit.
const nativePageSize = 100

// maxBatchDelete bounds one batch delete request.
const maxBatchDelete = 25

// Connect dials SurrealDB over WebSocket with the surrealcbor codec. The
// codec matters: SurrealDB speaks CBOR natively, and default marshaling
// mangles time.Time and record ids.
func Connect(ctx context.Context, cfg config.SurrealConfig) (*surrealdb.DB, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse surrealdb URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("connect to surrealdb: %w", err)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("surrealdb signin: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("use namespace/database: %w", err)
	}

	return db, nil
}

// recordID builds the composite record id <table>:[pk, sk]. Identical
// inputs must produce identical ids; upserts depend on it.
func recordID(table, pk, sk string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(table, []string{pk, sk})
}

// queryRows runs a SurrealQL statement and returns the rows of its first
// result set.
func queryRows[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	res, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	return (*res)[0].Result, nil
}

// containsClause renders a substring OR-match over the given document
// fields, binding the needle as $search. Field names pass through
// escapeField so callers can use names the grammar cannot carry raw.
func containsClause(fields ...string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("string::contains(%s ?? '', $search)", escapeField(f))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// escapeField wraps a field name in SurrealDB's identifier quoting when it
// contains characters the expression syntax cannot carry (hyphens in
// particular). The stored attribute keeps its original name.
func escapeField(name string) string {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
	}
	return name
}

// setClauses builds the SET fragment of a partial update for the supplied
// fields, prefixing each with path (may be empty). Values are bound as
// numbered parameters $f0, $f1, ... into vars, so only legal placeholder
// names ever reach the expression syntax.
func setClauses(path string, fields map[string]any, vars map[string]any) string {
	clauses := make([]string, 0, len(fields))
	i := 0
	for name, value := range fields {
		param := fmt.Sprintf("f%d", i)
		target := escapeField(name)
		if path != "" {
			target = path + "." + target
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%s", target, param))
		vars[param] = value
		i++
	}
	return strings.Join(clauses, ", ")
}
