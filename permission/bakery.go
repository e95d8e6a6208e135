package permission

/*
Package permission knows who you are and what you're allowed to do.

Cookie keys live in the site config.  Each key is minted with for a while,
then honored for a while longer, so a rotation doesn't log everyone out.
*/

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/ts4z/rungs/model"
)

const (
	AuthCookieName = "rungs-auth"
)

type BakeryClock interface {
	Now() time.Time
}

type cookieBaker struct {
	v  model.CookieKeyValidity
	sc *securecookie.SecureCookie
}

func (cb *cookieBaker) honorable(now time.Time) bool {
	return now.After(cb.v.MintFrom) && now.Before(cb.v.HonorUntil)
}

func (cb *cookieBaker) mintable(now time.Time) bool {
	return now.After(cb.v.MintFrom) && now.Before(cb.v.MintUntil)
}

type SiteConfigFetcher interface {
	FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error)
}

type Bakery struct {
	clock        BakeryClock
	cookieDomain string
	secure       bool
	bakers       []cookieBaker
}

// New creates a Bakery from the keys in conf that haven't expired.  secure
// sets the Secure flag on minted cookies.
func New(clock BakeryClock, conf *model.SiteConfig, secure bool) (*Bakery, error) {
	now := clock.Now()
	keys := []cookieBaker{}
	for i, inputKey := range conf.CookieKeys {
		if inputKey.Validity.HonorUntil.Before(now) {
			continue
		}
		hashKey, err := base64.StdEncoding.DecodeString(inputKey.HashKey64)
		if err != nil {
			log.Printf("disregarding key conf.CookieKeys[%d] due to bad HashKey64: %v", i, err)
			continue
		}
		blockKey, err := base64.StdEncoding.DecodeString(inputKey.BlockKey64)
		if err != nil {
			log.Printf("disregarding key conf.CookieKeys[%d] due to bad BlockKey64: %v", i, err)
			continue
		}
		keys = append(keys,
			cookieBaker{
				sc: securecookie.New(hashKey, blockKey),
				v:  inputKey.Validity,
			})
	}

	return &Bakery{
		clock:        clock,
		cookieDomain: conf.CookieDomain,
		secure:       secure,
		bakers:       keys,
	}, nil
}

func (b *Bakery) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    AuthCookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(1, 0),
		MaxAge:  -1,
	})
}

func (b *Bakery) ReadCookie(r *http.Request) (*model.AuthCookieData, error) {
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil {
		return nil, fmt.Errorf("can't get cookie: %w", err)
	}

	errors := []error{}
	now := b.clock.Now()

	c := &model.AuthCookieData{}
	for _, baker := range b.bakers {
		if !baker.honorable(now) {
			continue
		}

		err := baker.sc.Decode(AuthCookieName, cookie.Value, c)
		if err == nil {
			return c, nil
		}

		errors = append(errors, err)
	}

	if len(errors) == 0 {
		return nil, fmt.Errorf("no valid keys to validate cookie")
	}
	return nil, fmt.Errorf("can't validate cookie (%d decoders): %w", len(errors), errors[0])
}

func (b *Bakery) bestKeyForMinting(now time.Time) (*cookieBaker, error) {
	var best *cookieBaker
	for i := range b.bakers {
		key := &b.bakers[i]
		if !key.mintable(now) {
			continue
		}

		// Pick the key that is valid for the longest amount of time.
		if best == nil || best.v.HonorUntil.Before(key.v.HonorUntil) {
			best = key
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no valid key for minting")
	}

	return best, nil
}

func (b *Bakery) BakeCookie(w http.ResponseWriter, lc *model.AuthCookieData) error {
	bb, err := b.bestKeyForMinting(b.clock.Now())
	if err != nil {
		return fmt.Errorf("can't find key for minting: %w", err)
	}

	encrypted, err := bb.sc.Encode(AuthCookieName, lc)
	if err != nil {
		log.Printf("can't encrypt cookie: %v", err)
		return fmt.Errorf("can't encrypt cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    encrypted,
		Path:     "/",
		Domain:   b.cookieDomain,
		Secure:   b.secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return nil
}

// BakeryFactory makes a Bakery from the current site config, so that key
// rotations are picked up without a restart.  The site config is expected
// to be cached by the storage beneath.
type BakeryFactory struct {
	clock  BakeryClock
	site   SiteConfigFetcher
	secure bool
}

func NewBakeryFactory(clock BakeryClock, site SiteConfigFetcher, secure bool) *BakeryFactory {
	return &BakeryFactory{clock: clock, site: site, secure: secure}
}

func (f *BakeryFactory) Bakery(ctx context.Context) (*Bakery, error) {
	conf, err := f.site.FetchSiteConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch site config: %w", err)
	}
	return New(f.clock, conf, f.secure)
}

// NewCookieKeyPair mints random keys, usable for minting from now for
// mintFor, and honored for honorFor after that.
func NewCookieKeyPair(now time.Time, mintFor, honorFor time.Duration) model.CookieKeyPair {
	return model.CookieKeyPair{
		Validity: model.CookieKeyValidity{
			MintFrom:   now,
			MintUntil:  now.Add(mintFor),
			HonorUntil: now.Add(mintFor + honorFor),
		},
		HashKey64:  base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(64)),
		BlockKey64: base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)),
	}
}

// PruneCookieKeys drops keys that can no longer be honored.
func PruneCookieKeys(now time.Time, keys []model.CookieKeyPair) []model.CookieKeyPair {
	kept := []model.CookieKeyPair{}
	for _, k := range keys {
		if k.Validity.HonorUntil.After(now) {
			kept = append(kept, k)
		}
	}
	return kept
}
