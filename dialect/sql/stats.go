package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/m2m/dialect"
)

// Statement kinds counted by QueryStats.
const (
	KindSelect = "select"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
	KindOther  = "other"
)

// StatementKind returns the kind of the statement from its leading keyword.
func StatementKind(query string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch strings.ToLower(verb) {
	case KindSelect:
		return KindSelect
	case KindInsert:
		return KindInsert
	case KindUpdate:
		return KindUpdate
	case KindDelete:
		return KindDelete
	}
	return KindOther
}

// QueryStats counts executed statements. A reconcile shows up as one
// delete followed by a select and an insert per linked key.
type QueryStats struct {
	selects, inserts, updates, deletes, other atomic.Int64
	duration                                  atomic.Int64 // nanoseconds
	slow, errors                              atomic.Int64
}

func (s *QueryStats) add(kind string, d time.Duration, slow bool, err error) {
	switch kind {
	case KindSelect:
		s.selects.Add(1)
	case KindInsert:
		s.inserts.Add(1)
	case KindUpdate:
		s.updates.Add(1)
	case KindDelete:
		s.deletes.Add(1)
	default:
		s.other.Add(1)
	}
	s.duration.Add(int64(d))
	if slow {
		s.slow.Add(1)
	}
	if err != nil {
		s.errors.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		Selects:  s.selects.Load(),
		Inserts:  s.inserts.Load(),
		Updates:  s.updates.Load(),
		Deletes:  s.deletes.Load(),
		Other:    s.other.Load(),
		Duration: time.Duration(s.duration.Load()),
		Slow:     s.slow.Load(),
		Errors:   s.errors.Load(),
	}
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	Selects, Inserts, Updates, Deletes, Other int64
	Duration                                  time.Duration
	Slow                                      int64
	Errors                                    int64
}

// Total returns the number of statements.
func (s StatsSnapshot) Total() int64 {
	return s.Selects + s.Inserts + s.Updates + s.Deletes + s.Other
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("select=%d insert=%d update=%d delete=%d other=%d duration=%s slow=%d errors=%d",
		s.Selects, s.Inserts, s.Updates, s.Deletes, s.Other, s.Duration, s.Slow, s.Errors)
}

// SlowQueryHook is called for statements slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver counts the statements run through the driver and the
// transactions it starts.
type StatsDriver struct {
	*Driver
	stats     *QueryStats
	threshold time.Duration
	hook      SlowQueryHook
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the slow statement threshold. Defaults to 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithSlowQueryHook sets the callback for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements as warnings. A nil logger uses
// slog.Default.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, d time.Duration) {
		logger.WarnContext(ctx, "slow statement", "kind", StatementKind(query), "duration", d, "query", query, "args", args)
	})
}

// NewStatsDriver wraps drv with statement counting.
//
//	drv, _ := sql.Open("postgres", dsn)
//	sd := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	store := sqlstore.New(sd, schema)
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		stats:     &QueryStats{},
		threshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// Query implements dialect.ExecQuerier.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error { return d.Driver.Query(ctx, query, args, v) })
}

// Exec implements dialect.ExecQuerier.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error { return d.Driver.Exec(ctx, query, args, v) })
}

// Tx starts a transaction whose statements are counted.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, query string, args any, run func() error) error {
	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	slow := elapsed > d.threshold
	d.stats.add(StatementKind(query), elapsed, slow, err)
	if slow && d.hook != nil {
		argv, _ := args.([]any)
		d.hook(ctx, query, argv, elapsed)
	}
	return err
}

// StatsTx is a transaction started by a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query implements dialect.ExecQuerier.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error { return tx.Tx.Query(ctx, query, args, v) })
}

// Exec implements dialect.ExecQuerier.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error { return tx.Tx.Exec(ctx, query, args, v) })
}

// DebugDriver logs every statement at debug level.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
}

// Debug wraps drv with statement logging. A nil logger uses slog.Default.
func Debug(drv dialect.Driver, logger *slog.Logger) *DebugDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugDriver{Driver: drv, logger: logger}
}

// Query implements dialect.ExecQuerier.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "sql: query", "query", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec implements dialect.ExecQuerier.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "sql: exec", "query", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose statements are logged too.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.DebugContext(ctx, "sql: begin")
	return &DebugTx{Tx: tx, logger: d.logger, ctx: ctx}, nil
}

// DebugTx is a transaction started by a DebugDriver.
type DebugTx struct {
	dialect.Tx
	logger *slog.Logger
	ctx    context.Context
}

// Query implements dialect.ExecQuerier.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.logger.DebugContext(ctx, "sql: tx query", "query", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec implements dialect.ExecQuerier.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.logger.DebugContext(ctx, "sql: tx exec", "query", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit implements driver.Tx.
func (tx *DebugTx) Commit() error {
	tx.logger.DebugContext(tx.ctx, "sql: commit")
	return tx.Tx.Commit()
}

// Rollback implements driver.Tx.
func (tx *DebugTx) Rollback() error {
	tx.logger.DebugContext(tx.ctx, "sql: rollback")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
