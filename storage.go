package m2m

import "context"

// Junction describes the junction table of a relation.
type Junction struct {
	Table        string
	OwnerColumn  string
	TargetColumn string
}

// Storage is the persistence layer used by the synchronizer.
// All methods may block and must honor context cancellation.
type Storage interface {
	// Find returns the entity of the target type with the given key.
	// It returns an error satisfying IsNotFound if there is none.
	Find(ctx context.Context, target string, key any) (Entity, error)
	// DeleteWhere deletes the rows of table matching all column-value
	// pairs of cond and returns the number of deleted rows.
	DeleteWhere(ctx context.Context, table string, cond map[string]any) (int64, error)
	// UnlinkAll removes all junction rows of the owner relation, and when
	// deleteTargets is set, the target rows they referenced. It returns the
	// number of removed junction rows.
	UnlinkAll(ctx context.Context, owner Owner, relation string, deleteTargets bool) (int64, error)
	// Link creates one junction row between owner and target. The owner and
	// target key columns take precedence over extra columns of the same name.
	Link(ctx context.Context, owner Owner, relation string, target Entity, extra map[string]any) error
	// Junction resolves the junction table metadata of the owner relation.
	Junction(ctx context.Context, owner Owner, relation string) (Junction, error)
}

// Transactor is implemented by storages that can run a function
// in a transaction. The transaction is committed if fn returns nil
// and rolled back otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(Storage) error) error
}
