// Package migrations embeds the SQL schema for both the control database
// and the per-tenant databases. The control schema holds the organization
// catalog and the tenant database registry; the tenant schema holds the
// assessment tree and findings.
package migrations

import "embed"

//go:embed control/*.sql tenant/*.sql
var FS embed.FS
