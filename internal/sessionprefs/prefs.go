package sessionprefs

import (
	"context"
	"sync/atomic"
)

// Prefs captures per-terminal display preferences. They are toggled by the
// command handler and read by the event printer, so fields are atomic.
type Prefs struct {
	// FullCode prints the whole buffer on every code update instead of a
	// one-line summary.
	FullCode atomic.Bool
	// ShowCursors prints remote cursor moves.
	ShowCursors atomic.Bool
}

type prefsKey struct{}

// New returns prefs with both toggles off.
func New() *Prefs {
	return &Prefs{}
}

// ToggleFullCode flips FullCode and returns the new value.
func (p *Prefs) ToggleFullCode() bool { return flip(&p.FullCode) }

// ToggleCursors flips ShowCursors and returns the new value.
func (p *Prefs) ToggleCursors() bool { return flip(&p.ShowCursors) }

func flip(b *atomic.Bool) bool {
	for {
		old := b.Load()
		if b.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// WithContext stores prefs in the context.
func WithContext(ctx context.Context, prefs *Prefs) context.Context {
	if ctx == nil || prefs == nil {
		return ctx
	}
	return context.WithValue(ctx, prefsKey{}, prefs)
}

// FromContext returns the prefs stored in the context, if any.
func FromContext(ctx context.Context) *Prefs {
	if ctx == nil {
		return nil
	}
	if value := ctx.Value(prefsKey{}); value != nil {
		if prefs, ok := value.(*Prefs); ok {
			return prefs
		}
	}
	return nil
}
