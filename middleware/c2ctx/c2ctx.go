// Package c2ctx turns the auth cookie into a user in the request context.
package c2ctx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/ts4z/rungs/dep"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/permission"
	"github.com/ts4z/rungs/varz"
)

var (
	cookiesCleared = varz.NewInt("cookiesCleared")
	impersonations = varz.NewInt("impersonations")
)

// UserFetcher is the one piece of user storage this needs.
type UserFetcher interface {
	FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error)
}

// CookieToContext is middleware that parses the cookie from the request and squirrels
// it away in the context, so not every level of the app has to be aware of users.
type CookieToContext struct {
	bakeryFactory *permission.BakeryFactory
	userStorage   UserFetcher

	next http.Handler
}

// identify picks who the request acts as.  Only an admin may act as
// someone else; anyone else claiming to gets themselves.
func (c *CookieToContext) identify(ctx context.Context, data *model.AuthCookieData) (*model.UserIdentity, error) {
	who, err := c.userStorage.FetchUserByUserID(ctx, data.RealUserID)
	if err != nil {
		return nil, fmt.Errorf("can't fetch user %d: %w", data.RealUserID, err)
	}
	if data.EffectiveUserID == 0 || data.EffectiveUserID == who.ID {
		return who, nil
	}
	if !who.IsAdmin {
		log.Printf("user %d (%s) not allowed to act as user %d", who.ID, who.Nick, data.EffectiveUserID)
		return who, nil
	}
	effective, err := c.userStorage.FetchUserByUserID(ctx, data.EffectiveUserID)
	if err != nil {
		return nil, fmt.Errorf("can't fetch effective user %d: %w", data.EffectiveUserID, err)
	}
	impersonations.Add(1)
	return effective, nil
}

// ServeHTTP implements the http.Handler interface and forwards to the next handler
func (c *CookieToContext) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(permission.AuthCookieName); errors.Is(err, http.ErrNoCookie) {
		// Most visitors never log in.
		c.next.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	bakery, err := c.bakeryFactory.Bakery(ctx)
	if err != nil {
		log.Printf("can't get bakery: %v", err)
		c.next.ServeHTTP(w, r)
		return
	}

	data, err := bakery.ReadCookie(r)
	if err != nil {
		// Stale key or garbage.  Drop it so the browser stops sending it.
		log.Printf("clearing unreadable cookie: %v", err)
		cookiesCleared.Add(1)
		bakery.ClearCookie(w)
		c.next.ServeHTTP(w, r)
		return
	}

	identity, err := c.identify(ctx, data)
	if err != nil {
		log.Printf("can't fetch user data from cookie: %v", err)
	} else {
		r = r.WithContext(permission.UserIdentityInContext(ctx, identity))
	}

	c.next.ServeHTTP(w, r)
}

type Config struct {
	BakeryFactory *permission.BakeryFactory
	UserStorage   UserFetcher
	Next          http.Handler
}

func Handler(cf *Config) http.Handler {
	return &CookieToContext{
		bakeryFactory: dep.Required(cf.BakeryFactory),
		userStorage:   dep.Required(cf.UserStorage),
		next:          dep.Required(cf.Next),
	}
}
