// Package migrations holds the schema of the history ledger.
package migrations

import "embed"

// FS holds the numbered up and down scripts applied by the store on open.
//
//go:embed *.sql
var FS embed.FS
