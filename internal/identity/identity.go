// Package identity carries the acting user on a request context.
package identity

import (
	"context"
	"strings"

	"github.com/Veraticus/ledgerline/internal/common"
)

type actorKey struct{}

// WithActor returns a context that carries the acting user's identifier.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// Actor returns the acting user, or ErrUnauthenticated when none is set.
func Actor(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", common.ErrUnauthenticated
	}
	id, _ := ctx.Value(actorKey{}).(string)
	if strings.TrimSpace(id) == "" {
		return "", common.ErrUnauthenticated
	}
	return id, nil
}
