package migrations

type CreateCheckpoints struct{}

func init() {
	registerMigration(&CreateCheckpoints{})
}

func (m *CreateCheckpoints) Version() string {
	return "20261017090000"
}

func (m *CreateCheckpoints) Up(tx *Tx) {
	tx.MustExec(`
		create table checkpoints (
			target text primary key,
			cursor text not null,
			is_done integer not null,
			pages integer not null,
			updated_at text not null
		)
	`)
}
