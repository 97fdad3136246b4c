// Package migrations embeds the goose SQL migrations of every module.
package migrations

import "embed"

//go:embed org/*.sql
var FS embed.FS

// OrgDir is the directory of the org module migrations inside FS.
const OrgDir = "org"
