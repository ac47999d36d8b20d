// Package migrations holds the ordered SQL files applied at startup.
package migrations

import "embed"

// FS contains every *.sql file in lexical apply order.
//
//go:embed *.sql
var FS embed.FS
