package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/m2m"
	"github.com/syssam/m2m/dialect"
	"github.com/syssam/m2m/dialect/sql"
	"github.com/syssam/m2m/sqlstore"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const usage = `usage:
  m2msync show -type TYPE -id KEY[,KEY...]
  m2msync set -type TYPE -id KEY -relation NAME -keys KEY[,KEY...]`

type app struct {
	cfg       *Config
	out       io.Writer
	logger    *slog.Logger
	stats     *sql.StatsDriver
	store     *sqlstore.Store
	registry  *prometheus.Registry
	behaviors map[string]*m2m.Behavior
}

func run(ctx context.Context, args []string, out io.Writer, v *viper.Viper) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, out)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "show":
		err = a.show(ctx, rest)
	case "set":
		err = a.set(ctx, rest)
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		return err
	}
	return a.flush()
}

func newApp(cfg *Config, out io.Writer) (*app, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fc, err := readFile(cfg.Relations)
	if err != nil {
		return nil, err
	}
	policy, err := m2m.ParseMissingPolicy(fc.Missing)
	if err != nil {
		return nil, err
	}
	schema, err := fc.Build(dialect.Normalize(cfg.Driver))
	if err != nil {
		return nil, err
	}
	for owner, rels := range fc.Owners {
		if err := sqlstore.AddRelations(schema, owner, rels...); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:       cfg,
		out:       out,
		logger:    logger,
		stats:     sql.NewStatsDriver(db, sql.WithSlowQueryLog(logger)),
		registry:  prometheus.NewRegistry(),
		behaviors: make(map[string]*m2m.Behavior, len(fc.Owners)),
	}
	var drv dialect.Driver = a.stats
	if cfg.Debug {
		drv = sql.Debug(drv, logger)
	}
	a.store = sqlstore.New(drv, schema, sqlstore.WithLogger(logger))

	metrics := m2m.NewMetrics(a.registry)
	for owner, rels := range fc.Owners {
		opts := []m2m.Option{
			m2m.WithLogger(logger.With("type", owner)),
			m2m.WithMetrics(metrics),
			m2m.WithMissingPolicy(policy),
		}
		if cfg.Tx {
			opts = append(opts, m2m.WithTx())
		}
		if fc.Strict {
			opts = append(opts, m2m.WithStrict())
		}
		b, err := m2m.Attach(a.store, rels, opts...)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("owner %s: %w", owner, err)
		}
		a.behaviors[owner] = b
	}
	return a, nil
}

func (a *app) behavior(typ string) (*m2m.Behavior, error) {
	if typ == "" {
		return nil, errors.New("-type is required")
	}
	b, ok := a.behaviors[typ]
	if !ok {
		return nil, fmt.Errorf("type %q has no relations", typ)
	}
	return b, nil
}

// show loads the owners concurrently and prints their relation keys.
func (a *app) show(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	typ := fs.String("type", "", "owner type")
	ids := fs.String("id", "", "comma separated owner keys")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := a.behavior(*typ)
	if err != nil {
		return err
	}
	keys := parseKeys(*ids)
	if len(keys) == 0 {
		return errors.New("-id is required")
	}
	recs := make([]*m2m.Record, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, key := range keys {
		g.Go(func() error {
			rec, err := a.store.Load(gctx, *typ, key)
			if err != nil {
				return err
			}
			if err := b.OnAfterLoad(gctx, rec); err != nil {
				return err
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := a.print(b, rec); err != nil {
			return err
		}
	}
	return nil
}

// set replaces the keys of one relation of an owner.
func (a *app) set(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	typ := fs.String("type", "", "owner type")
	id := fs.String("id", "", "owner key")
	relation := fs.String("relation", "", "relation name")
	keys := fs.String("keys", "", "comma separated related keys; empty clears the relation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := a.behavior(*typ)
	if err != nil {
		return err
	}
	owner := parseKeys(*id)
	if len(owner) != 1 {
		return errors.New("-id must name exactly one owner")
	}
	attr, err := b.Synchronizer().Registry().Attribute(*relation)
	if err != nil {
		return err
	}
	rec, err := a.store.Load(ctx, *typ, owner[0])
	if err != nil {
		return err
	}
	if err := b.OnAfterLoad(ctx, rec); err != nil {
		return err
	}
	rec.SetRelationAttribute(attr, parseKeys(*keys))
	// Only the named relation; the others keep their rows untouched.
	if err := b.Synchronizer().Reconcile(ctx, rec, *relation); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "relation updated", "type", *typ, "id", rec.Key(), "relation", *relation)

	if rec, err = a.store.Load(ctx, *typ, owner[0]); err != nil {
		return err
	}
	if err := b.OnAfterLoad(ctx, rec); err != nil {
		return err
	}
	return a.print(b, rec)
}

// print writes the relation keys of rec in declaration order.
func (a *app) print(b *m2m.Behavior, rec *m2m.Record) error {
	fmt.Fprintf(a.out, "%s %v\n", rec.Type(), rec.Key())
	registry := b.Synchronizer().Registry()
	for _, name := range registry.Names() {
		attr, err := registry.Attribute(name)
		if err != nil {
			return err
		}
		keys, _ := rec.RelationAttribute(attr)
		fmt.Fprintf(a.out, "  %s: %v\n", name, keys)
	}
	return nil
}

// flush logs the query statistics and writes the metrics file.
func (a *app) flush() error {
	a.logger.Debug("query stats", "stats", a.stats.QueryStats().Stats().String())
	if a.cfg.MetricsFile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry)
}

func (a *app) close() {
	if err := a.stats.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
