// Package m2m keeps many-to-many relations of an owner entity in sync with
// their junction tables.
//
// A Behavior is attached to an owner type with one or more relation
// configurations. After the owner is loaded, the identifiers of each
// loaded related collection are materialized into a scalar attribute of the
// owner. After the owner is inserted or updated, the junction rows of each
// relation are reconciled to match that attribute again.
//
//	b, err := m2m.Attach(store, []*m2m.Relation{{
//	    Name:      "tags",
//	    Target:    "Tag",
//	    Attribute: "tagIds",
//	    KeyColumn: "id",
//	}})
//	if err != nil {
//	    return err
//	}
//	// after loading article and its "tags" edge:
//	err = b.OnAfterLoad(ctx, article)
//	// application code changes the desired set:
//	article.SetRelationAttribute("tagIds", []any{7, 9})
//	// after saving article:
//	err = b.OnAfterUpdate(ctx, article)
//
// # Reconcile
//
// Reconciling a relation first clears its links, either all junction rows
// of the owner or only the rows matching an additional unlink condition,
// and then links every key of the desired set one by one. Keys that do not
// resolve to a target entity fail with a *RelatedNotFoundError unless a
// different MissingPolicy is configured.
//
// The synchronizer does not open transactions by default. Without an
// enclosing transaction, a failure between the unlink and the relink steps
// leaves the relation empty. Use WithTx with a Storage that implements
// Transactor to make each reconcile atomic.
//
// # Storage
//
// The synchronizer only talks to a Storage. Package sqlstore provides one
// for SQL databases on top of dialect/sql/sqlgraph.
package m2m
