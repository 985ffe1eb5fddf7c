// m2msync shows and rewrites the many-to-many relations of stored entities.
//
// The database and the relation file are configured through the
// environment:
//
//	M2M_DIALECT=sqlite M2M_DSN=app.db M2M_RELATIONS=relations.yaml \
//	    m2msync show -type Article -id 1,2,3
//	m2msync set -type Article -id 1 -relation tags -keys 7,9
//
// The relation file declares the schema nodes, optional junction edges,
// and the relations of each owner type:
//
//	nodes:
//	  - {type: Article, table: articles}
//	  - {type: Tag, table: tags}
//	owners:
//	  Article:
//	    tags: {modelClass: Tag, attribute: tagIds, pkColumnName: id}
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, viper.New()); err != nil {
		fmt.Fprintf(os.Stderr, "m2msync: %v\n", err)
		os.Exit(1)
	}
}
