package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextActorKey       ctxKey = "actor"
	ContextPermissionsKey ctxKey = "permissions"
)

// SystemActor is recorded on audit entries written by schedulers and workers.
const SystemActor = "SYSTEM"

func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	if actor, ok := ctx.Value(ContextActorKey).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ContextActorKey, actor)
}

func PermissionsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if perms, ok := ctx.Value(ContextPermissionsKey).([]string); ok {
		return perms
	}
	return nil
}

func ContextWithPermissions(ctx context.Context, permissions []string) context.Context {
	return context.WithValue(ctx, ContextPermissionsKey, permissions)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
