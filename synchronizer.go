package m2m

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"
)

// MissingPolicy decides what reconcile does when a desired key does not
// resolve to a target entity.
type MissingPolicy int

const (
	// MissingAbort stops the reconcile with a *RelatedNotFoundError.
	MissingAbort MissingPolicy = iota
	// MissingSkip logs a warning and continues with the next key.
	MissingSkip
	// MissingCollect links all keys that resolve, in every relation of
	// the owner, and then returns an *AggregateError holding the
	// *RelatedNotFoundError of every key that did not. Collected misses
	// do not roll back a WithTx transaction.
	MissingCollect
)

// String returns the policy name.
func (p MissingPolicy) String() string {
	switch p {
	case MissingAbort:
		return "abort"
	case MissingSkip:
		return "skip"
	case MissingCollect:
		return "collect"
	default:
		return "unknown"
	}
}

// ParseMissingPolicy parses a policy name as returned by MissingPolicy.String.
// The empty string parses as MissingAbort.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "abort":
		return MissingAbort, nil
	case "skip":
		return MissingSkip, nil
	case "collect":
		return MissingCollect, nil
	default:
		return 0, &ConfigError{Field: "missing", Msg: "unknown missing policy " + s}
	}
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. A nil logger uses slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records reconcile activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithMissingPolicy sets the policy applied to desired keys that do
// not resolve. The default is MissingAbort.
func WithMissingPolicy(p MissingPolicy) Option {
	return func(s *Synchronizer) {
		s.missing = p
	}
}

// WithTx runs the unlink and relink steps of a reconcile in one
// transaction when the storage implements Transactor.
func WithTx() Option {
	return func(s *Synchronizer) {
		s.tx = true
	}
}

// WithStrict validates all relations when the synchronizer is created,
// instead of on first use.
func WithStrict() Option {
	return func(s *Synchronizer) {
		s.strict = true
	}
}

// Synchronizer materializes and reconciles the relations of a registry.
// It holds no per-owner state and is safe for concurrent use when its
// storage is.
type Synchronizer struct {
	registry *Registry
	storage  Storage
	logger   *slog.Logger
	metrics  *Metrics
	missing  MissingPolicy
	tx       bool
	strict   bool
}

// NewSynchronizer returns a synchronizer for the relations of the registry.
func NewSynchronizer(registry *Registry, storage Storage, opts ...Option) (*Synchronizer, error) {
	if registry == nil {
		return nil, NewConfigError("", "relations")
	}
	if storage == nil {
		return nil, &ConfigError{Msg: "storage is required"}
	}
	s := &Synchronizer{
		registry: registry,
		storage:  storage,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.strict {
		if err := registry.Validate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Registry returns the relation registry of the synchronizer.
func (s *Synchronizer) Registry() *Registry {
	return s.registry
}

// Materialize sets the relation attribute of the owner to the keys of its
// loaded related collection, in load order. It does not access storage.
func (s *Synchronizer) Materialize(_ context.Context, owner Owner, relation string) error {
	attr, err := s.registry.Attribute(relation)
	if err != nil {
		return err
	}
	keyCol, err := s.registry.KeyColumn(relation)
	if err != nil {
		return err
	}
	related, err := owner.Edges(relation)
	if err != nil {
		return err
	}
	keys := make([]any, 0, len(related))
	for i, e := range related {
		v, ok := e.Value(keyCol)
		if !ok {
			return &ColumnError{Relation: relation, Column: keyCol, Index: i}
		}
		keys = append(keys, v)
	}
	owner.SetRelationAttribute(attr, keys)
	return nil
}

// MaterializeAll materializes every relation of the registry, in order.
func (s *Synchronizer) MaterializeAll(ctx context.Context, owner Owner) error {
	for _, name := range s.registry.names {
		if err := s.Materialize(ctx, owner, name); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile makes the junction rows of the owner relation match the key
// set held by its attribute. The existing links are removed first, then
// every desired key is looked up and linked in order. An unset attribute
// only removes the links.
func (s *Synchronizer) Reconcile(ctx context.Context, owner Owner, relation string) error {
	rel, err := s.registry.Relation(relation)
	if err != nil {
		return err
	}
	var missing []error
	err = s.run(ctx, func(st Storage) error {
		var err error
		missing, err = s.reconcile(ctx, st, owner, rel)
		return err
	})
	if err != nil {
		return err
	}
	return NewAggregateError(missing...)
}

// ReconcileAll reconciles every relation of the registry, in order. All
// relations are checked before any storage call, and the first failing
// relation stops the remaining ones. Keys collected by MissingCollect
// are not failures: all relations run and the misses are returned together. With WithTx, all relations share one
// transaction.
func (s *Synchronizer) ReconcileAll(ctx context.Context, owner Owner) error {
	rels := make([]*Relation, 0, len(s.registry.names))
	for _, name := range s.registry.names {
		rel, err := s.registry.Relation(name)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
	}
	var missing []error
	err := s.run(ctx, func(st Storage) error {
		missing = missing[:0]
		for _, rel := range rels {
			m, err := s.reconcile(ctx, st, owner, rel)
			if err != nil {
				return err
			}
			missing = append(missing, m...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return NewAggregateError(missing...)
}

func (s *Synchronizer) run(ctx context.Context, fn func(Storage) error) error {
	if s.tx {
		if t, ok := s.storage.(Transactor); ok {
			return t.WithTx(ctx, fn)
		}
		s.logger.WarnContext(ctx, "m2m: storage does not support transactions, reconciling without one")
	}
	return fn(s.storage)
}

// reconcile returns the misses collected under MissingCollect apart from
// the error that stopped it.
func (s *Synchronizer) reconcile(ctx context.Context, st Storage, owner Owner, rel *Relation) ([]error, error) {
	defer s.metrics.observe(rel.Name, time.Now())
	n, err := s.unlink(ctx, st, owner, rel)
	if err != nil {
		return nil, &SyncError{Relation: rel.Name, Op: "unlink", Err: err}
	}
	s.metrics.unlink(rel.Name, n)
	keys, ok := owner.RelationAttribute(rel.Attribute)
	if !ok {
		s.logger.DebugContext(ctx, "m2m: relation attribute not set, links removed only",
			"type", owner.Type(), "key", owner.Key(), "relation", rel.Name, "unlinked", n)
		return nil, nil
	}
	var (
		missing []error
		linked  int
	)
	for _, key := range keys {
		target, err := st.Find(ctx, rel.Target, key)
		switch {
		case IsNotFound(err):
			s.metrics.miss(rel.Name)
			nf := &RelatedNotFoundError{Relation: rel.Name, Target: rel.Target, Key: key, Err: err}
			switch s.missing {
			case MissingSkip:
				s.logger.WarnContext(ctx, "m2m: skipping missing related entity",
					"type", owner.Type(), "key", owner.Key(), "relation", rel.Name, "target", rel.Target, "target_key", key)
				continue
			case MissingCollect:
				missing = append(missing, nf)
				continue
			default:
				return nil, nf
			}
		case err != nil:
			return nil, &SyncError{Relation: rel.Name, Op: "find", Err: err}
		}
		if err := st.Link(ctx, owner, rel.Name, target, maps.Clone(rel.ExtraColumns)); err != nil {
			return nil, &SyncError{Relation: rel.Name, Op: "link", Err: err}
		}
		s.metrics.link(rel.Name)
		linked++
	}
	s.logger.DebugContext(ctx, "m2m: relation reconciled",
		"type", owner.Type(), "key", owner.Key(), "relation", rel.Name,
		"unlinked", n, "linked", linked, "missing", len(missing))
	return missing, nil
}

// unlink removes the current links of the relation, either all of them or
// only those matching the unlink condition.
func (s *Synchronizer) unlink(ctx context.Context, st Storage, owner Owner, rel *Relation) (int64, error) {
	if len(rel.UnlinkCondition) == 0 {
		return st.UnlinkAll(ctx, owner, rel.Name, rel.DeleteTargets)
	}
	j, err := st.Junction(ctx, owner, rel.Name)
	if err != nil {
		return 0, err
	}
	if j.Table == "" || j.OwnerColumn == "" {
		return 0, errors.New("incomplete junction metadata")
	}
	cond := maps.Clone(rel.UnlinkCondition)
	cond[j.OwnerColumn] = owner.Key()
	return st.DeleteWhere(ctx, j.Table, cond)
}
