package model

import "time"

// CookieKeyValidity describes when a cookie key may be used.  Keys are minted
// with for a while, then honored for a while longer so that old cookies
// continue to work across a rotation.
type CookieKeyValidity struct {
	MintFrom   time.Time
	MintUntil  time.Time
	HonorUntil time.Time
}

type CookieKeyPair struct {
	Validity   CookieKeyValidity
	HashKey64  string
	BlockKey64 string
}

// SiteConfig is per-installation configuration that lives in the database.
type SiteConfig struct {
	Name                 string
	CookieDomain         string
	AllowedOriginDomains []string
	CookieKeys           []CookieKeyPair
}

// UserIdentity is who a request is from, once we've checked the cookie.
type UserIdentity struct {
	ID      int64
	Nick    string
	Email   string
	IsAdmin bool
}

type PasswordHash struct {
	Hash      string
	ExpiresAt *time.Time
}

// UserRow is a user as stored, including password hashes.  This shouldn't
// leave the login path.
type UserRow struct {
	UserIdentity
	Passwords []PasswordHash
}

// AuthCookieData is what we put in the auth cookie.
type AuthCookieData struct {
	RealUserID      int64
	EffectiveUserID int64
}

func (u *UserIdentity) Clone() *UserIdentity {
	cpy := *u
	return &cpy
}

func (c *SiteConfig) Clone() *SiteConfig {
	cpy := *c
	cpy.AllowedOriginDomains = append([]string(nil), c.AllowedOriginDomains...)
	cpy.CookieKeys = append([]CookieKeyPair(nil), c.CookieKeys...)
	return &cpy
}
