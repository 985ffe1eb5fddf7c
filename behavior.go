package m2m

import (
	"context"
	"fmt"
	"slices"
)

// Op is an owner lifecycle operation.
type Op uint

// Lifecycle operations.
const (
	OpLoad Op = 1 << iota
	OpInsert
	OpUpdate
)

// Is reports whether o matches any of the given operations.
func (i Op) Is(o Op) bool { return i&o != 0 }

// String returns the operation name.
func (i Op) String() string {
	switch i {
	case OpLoad:
		return "OpLoad"
	case OpInsert:
		return "OpInsert"
	case OpUpdate:
		return "OpUpdate"
	default:
		return fmt.Sprintf("Op(%d)", uint(i))
	}
}

// Handler handles one lifecycle operation of an owner.
type Handler interface {
	Handle(context.Context, Op, Owner) error
}

// The HandleFunc type is an adapter to allow the use of ordinary
// functions as Handler.
type HandleFunc func(context.Context, Op, Owner) error

// Handle calls f(ctx, op, o).
func (f HandleFunc) Handle(ctx context.Context, op Op, o Owner) error {
	return f(ctx, op, o)
}

// Hook wraps a Handler with additional behavior.
type Hook func(Handler) Handler

// Chain wraps h with the given hooks. The first hook is the outermost.
func Chain(h Handler, hooks ...Hook) Handler {
	for i := len(hooks) - 1; i >= 0; i-- {
		h = hooks[i](h)
	}
	return h
}

// Behavior attaches relation synchronization to the lifecycle of an
// owner type. Hosts call its methods after loading, inserting and
// updating an owner, or install Hook into their own handler chain.
type Behavior struct {
	sync *Synchronizer
}

// Attach returns a Behavior managing the given relations. It fails with a
// *ConfigError if no relation is given.
func Attach(storage Storage, relations []*Relation, opts ...Option) (*Behavior, error) {
	registry, err := NewRegistry(relations...)
	if err != nil {
		return nil, err
	}
	s, err := NewSynchronizer(registry, storage, opts...)
	if err != nil {
		return nil, err
	}
	return NewBehavior(s), nil
}

// NewBehavior returns a Behavior running the given synchronizer.
func NewBehavior(s *Synchronizer) *Behavior {
	return &Behavior{sync: s}
}

// Synchronizer returns the synchronizer of the behavior.
func (b *Behavior) Synchronizer() *Synchronizer {
	return b.sync
}

// OnAfterLoad materializes all relations of the owner.
func (b *Behavior) OnAfterLoad(ctx context.Context, owner Owner) error {
	return b.sync.MaterializeAll(ctx, owner)
}

// OnAfterInsert reconciles all relations of the owner.
func (b *Behavior) OnAfterInsert(ctx context.Context, owner Owner) error {
	return b.sync.ReconcileAll(ctx, owner)
}

// OnAfterUpdate reconciles all relations of the owner.
func (b *Behavior) OnAfterUpdate(ctx context.Context, owner Owner) error {
	return b.sync.ReconcileAll(ctx, owner)
}

// Handle dispatches op to the matching OnAfter method.
func (b *Behavior) Handle(ctx context.Context, op Op, owner Owner) error {
	switch op {
	case OpLoad:
		return b.OnAfterLoad(ctx, owner)
	case OpInsert:
		return b.OnAfterInsert(ctx, owner)
	case OpUpdate:
		return b.OnAfterUpdate(ctx, owner)
	default:
		return fmt.Errorf("m2m: unsupported operation %s", op)
	}
}

// Hook returns a hook that runs the behavior after the wrapped handler
// succeeded. Owners of other types than the given ones pass through
// untouched; no type means all owners.
func (b *Behavior) Hook(types ...string) Hook {
	return func(next Handler) Handler {
		return HandleFunc(func(ctx context.Context, op Op, o Owner) error {
			if err := next.Handle(ctx, op, o); err != nil {
				return err
			}
			if len(types) > 0 && !slices.Contains(types, o.Type()) {
				return nil
			}
			return b.Handle(ctx, op, o)
		})
	}
}
