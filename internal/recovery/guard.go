package recovery

import (
	"context"
	"fmt"
)

// Go runs fn in a goroutine; a panic is recovered and reported as critical.
func (h *Handler) Go(name string, fn func()) {
	go func() {
		defer h.Recover(name)
		fn()
	}()
}

// GoErr runs fn in a goroutine whose error nobody awaits. A non-nil error is
// reported with the unhandled default severity; a panic is recovered too.
func (h *Handler) GoErr(ctx context.Context, name string, fn func(context.Context) error) {
	go func() {
		defer h.Recover(name)
		if err := fn(ctx); err != nil {
			h.capture(ctx, SourceUnhandled, err, "", map[string]any{"goroutine": name}, "")
		}
	}()
}

// Recover must be deferred directly. It swallows a panic and reports it.
func (h *Handler) Recover(name string) {
	if r := recover(); r != nil {
		h.capturePanic(context.Background(), name, r)
	}
}

// SafeCall runs fn and converts a panic into a reported error.
func (h *Handler) SafeCall(ctx context.Context, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.capturePanic(ctx, name, r)
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn()
}

func (h *Handler) capturePanic(ctx context.Context, name string, r any) Report {
	var fields map[string]any
	if name != "" {
		fields = map[string]any{"goroutine": name}
	}
	// skip runtime.gopanic and the deferred recover frame
	return h.capture(ctx, SourcePanic, panicValue(r), captureStack(3), fields, "")
}

// panicValue keeps error panics as errors so transport failures classify correctly.
func panicValue(r any) any {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return v
	}
	return fmt.Sprint(r)
}
