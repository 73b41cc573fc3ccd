package auth

import (
	"context"
)

type contextKey string

const AdminKey contextKey = "admin"

// IsAdminRequest reports whether the admin token on the request was verified.
func IsAdminRequest(ctx context.Context) bool {
	ok, _ := ctx.Value(AdminKey).(bool)
	return ok
}
