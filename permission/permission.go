// Package permission decides who may change what.  Anyone, logged in or
// not, may read games and ladders.  Changing ladders, users or the site
// config takes an admin, except that users may set their own passwords.
// The logged-in user rides in the request context.
package permission

import (
	"context"
	"errors"
	"net/http"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
)

// ErrPermissionDenied is returned (wrapped) by every guarded operation the
// caller isn't allowed to perform.
var ErrPermissionDenied = he.New(http.StatusForbidden, errors.New("permission denied"))

type userKey struct{}

// UserIdentityInContext records who is making the request.
func UserIdentityInContext(ctx context.Context, u *model.UserIdentity) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext is the logged-in user, or nil for a visitor.
func UserFromContext(ctx context.Context) *model.UserIdentity {
	u, _ := ctx.Value(userKey{}).(*model.UserIdentity)
	return u
}

// IsAdmin says whether the request may curate ladders.
func IsAdmin(ctx context.Context) bool {
	u := UserFromContext(ctx)
	return u != nil && u.IsAdmin
}

// AdminContext is for rungsadmin, which runs on the console and may do
// anything.
func AdminContext(ctx context.Context) context.Context {
	return UserIdentityInContext(ctx, &model.UserIdentity{Nick: "(console)", IsAdmin: true})
}
