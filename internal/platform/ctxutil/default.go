package ctxutil

import "context"

// Default guards repo and job code paths that may be handed a nil context.
func Default(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
