package middleware

import (
	"context"

	"github.com/esheo1787/qc-management-system/api/internal/models"
)

type userKey struct{}

// WithUser stores the authenticated account for the rest of the request.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	if v := ctx.Value(userKey{}); v != nil {
		if u, ok := v.(models.User); ok {
			return u, true
		}
	}
	return models.User{}, false
}
