package migrations

type CreatePosts struct{}

func init() {
	registerMigration(&CreatePosts{})
}

func (m *CreatePosts) Version() string {
	return "20261017090500"
}

func (m *CreatePosts) Up(tx *Tx) {
	tx.MustExec(`
		create table posts (
			target text not null,
			id text not null,
			type text not null,
			path text not null,
			result text not null,
			written_at text not null,
			seen_at text not null,
			primary key (target, id)
		)
	`)
	tx.MustExec(`create index posts_target_type on posts (target, type)`)
}
