package build

import (
	"context"
	"errors"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// fanout is a slog.Handler that passes every record to each handler that
// accepts its level.
type fanout []slog.Handler

// Enabled reports whether any handler accepts the level.
//
// NOTE: this is part of the slog.Handler interface.
func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle dispatches the record to the handlers that accept it.
//
// NOTE: this is part of the slog.Handler interface.
func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}

		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler {
		return h.WithAttrs(attrs)
	})
}

// WithGroup implements slog.Handler.
func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler {
		return h.WithGroup(name)
	})
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}

	return out
}

// HandlerSet is a btclog.Handler writing every record to several btclog
// handlers, such as the console and a rotating log file.
type HandlerSet struct {
	fanout

	handlers []btclogv2.Handler
	level    btclog.Level
}

// NewHandlerSet combines the handlers. All of them start at the info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := newHandlerSet(handlers)
	h.SetLevel(btclog.LevelInfo)

	return h
}

func newHandlerSet(handlers []btclogv2.Handler) *HandlerSet {
	f := make(fanout, len(handlers))
	for i, h := range handlers {
		f[i] = h
	}

	return &HandlerSet{fanout: f, handlers: handlers}
}

// derive applies fn to every handler, keeping the level.
func (h *HandlerSet) derive(
	fn func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	handlers := make([]btclogv2.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}

	derived := newHandlerSet(handlers)
	derived.level = h.level

	return derived
}

// SubSystem returns a handler tagging records with the subsystem.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.derive(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.SubSystem(tag)
	})
}

// WithPrefix returns a handler prefixing every message.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.derive(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.WithPrefix(prefix)
	})
}

// SetLevel changes the level of every handler.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.handlers {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the current logging level.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

// Ensure HandlerSet implements btclog.Handler at compile time.
var _ btclogv2.Handler = (*HandlerSet)(nil)
