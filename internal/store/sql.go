package store

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// bootstrapStatements returns the DDL/function bodies that must run
// once against a fresh database, in a stable, name-sorted order (the
// numeric prefixes on the embedded files encode dependency order:
// meta table, trigger function, deep-set/merge helpers, then the two
// notify-emitting procedures that call them).
func bootstrapStatements() ([]string, error) {
	entries, err := fs.ReadDir(sqlFiles, "sql")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	stmts := make([]string, 0, len(names))
	for _, n := range names {
		b, err := sqlFiles.ReadFile("sql/" + n)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, string(b))
	}
	return stmts, nil
}
