package permission

import (
	"context"
	"fmt"

	"github.com/ts4z/rungs/model"
)

// A rule decides whether a logged-in user may do something.
type rule func(ui *model.UserIdentity) error

func adminOnly(ui *model.UserIdentity) error {
	if !ui.IsAdmin {
		return fmt.Errorf("%s is not an admin: %w", ui.Nick, ErrPermissionDenied)
	}
	return nil
}

// adminOrUser lets a user act on their own account.
func adminOrUser(uid int64) rule {
	return func(ui *model.UserIdentity) error {
		if ui.IsAdmin || ui.ID == uid {
			return nil
		}
		return fmt.Errorf("user %d acting on user %d: %w", ui.ID, uid, ErrPermissionDenied)
	}
}

func check(ctx context.Context, r rule) error {
	ui := UserFromContext(ctx)
	if ui == nil {
		return fmt.Errorf("not logged in: %w", ErrPermissionDenied)
	}
	return r(ui)
}

func guardedReturning[T any](ctx context.Context, r rule, fn func() (T, error)) (T, error) {
	if err := check(ctx, r); err != nil {
		var zero T
		return zero, err
	}
	return fn()
}

func guarded(ctx context.Context, r rule, fn func() error) error {
	if err := check(ctx, r); err != nil {
		return err
	}
	return fn()
}
