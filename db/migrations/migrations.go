package migrations

import (
	"database/sql"
	"sort"
)

type Migration interface {
	Version() string
	Up(tx *Tx)
}

var All []Migration

func init() {
	sort.Slice(All, func(i, j int) bool {
		return All[i].Version() < All[j].Version()
	})
}

func registerMigration(migration Migration) {
	All = append(All, migration)
}

// Tx panics on errors so that migrations read as a list of statements. The runner recovers and
// rolls back.
type Tx struct {
	impl *sql.Tx
}

func WrapTx(tx *sql.Tx) *Tx {
	return &Tx{impl: tx}
}

func (tx *Tx) MustExec(query string, args ...any) {
	if _, err := tx.impl.Exec(query, args...); err != nil {
		panic(err)
	}
}
