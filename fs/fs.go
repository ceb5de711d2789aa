// Package appfs embeds the files shipped with the binaries: SQL migrations, email templates, seed forms and assets.
package appfs

import "embed"

//go:embed assets migrations all:templates seeds
var FS embed.FS
