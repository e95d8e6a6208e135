package permission

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

var epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func siteWithKey(now time.Time) *model.SiteConfig {
	return &model.SiteConfig{
		Name:       "test",
		CookieKeys: []model.CookieKeyPair{NewCookieKeyPair(now.Add(-time.Minute), 24*time.Hour, 24*time.Hour)},
	}
}

func bake(t *testing.T, b *Bakery, data *model.AuthCookieData) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := b.BakeCookie(w, data); err != nil {
		t.Fatal(err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AuthCookieName {
		t.Fatalf("cookies = %+v", cookies)
	}
	return cookies[0]
}

func read(b *Bakery, c *http.Cookie) (*model.AuthCookieData, error) {
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(c)
	return b.ReadCookie(r)
}

func TestBakeAndReadCookie(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	b, err := New(clock, siteWithKey(epoch), true)
	if err != nil {
		t.Fatal(err)
	}
	c := bake(t, b, &model.AuthCookieData{RealUserID: 3, EffectiveUserID: 3})
	if !c.Secure || !c.HttpOnly {
		t.Errorf("cookie flags: %+v", c)
	}

	got, err := read(b, c)
	if err != nil {
		t.Fatal(err)
	}
	if got.RealUserID != 3 || got.EffectiveUserID != 3 {
		t.Errorf("cookie data = %+v", got)
	}
}

func TestCookieHonoredAfterMintingStops(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	site := siteWithKey(epoch)
	b, _ := New(clock, site, false)
	c := bake(t, b, &model.AuthCookieData{RealUserID: 1})

	// Past MintUntil, before HonorUntil.
	clock.Advance(30 * time.Hour)
	if _, err := read(b, c); err != nil {
		t.Errorf("cookie rejected during honor period: %v", err)
	}
	w := httptest.NewRecorder()
	if err := b.BakeCookie(w, &model.AuthCookieData{RealUserID: 1}); err == nil {
		t.Errorf("minted with a key past MintUntil")
	}

	clock.Advance(24 * time.Hour)
	if _, err := read(b, c); err == nil {
		t.Errorf("cookie honored after HonorUntil")
	}
}

func TestRotationKeepsOldCookies(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	site := siteWithKey(epoch)
	old, _ := New(clock, site, false)
	c := bake(t, old, &model.AuthCookieData{RealUserID: 1})

	site.CookieKeys = append(site.CookieKeys, NewCookieKeyPair(epoch.Add(-time.Second), 48*time.Hour, 24*time.Hour))
	rotated, _ := New(clock, site, false)
	if _, err := read(rotated, c); err != nil {
		t.Errorf("old cookie rejected after rotation: %v", err)
	}

	fresh := bake(t, rotated, &model.AuthCookieData{RealUserID: 2})
	if _, err := read(old, fresh); err == nil {
		t.Errorf("new key's cookie read by a bakery without it")
	}
}

func TestBadKeysAreSkipped(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	site := siteWithKey(epoch)
	site.CookieKeys[0].HashKey64 = "not base64!"
	b, err := New(clock, site, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BakeCookie(httptest.NewRecorder(), &model.AuthCookieData{}); err == nil {
		t.Errorf("minted without a usable key")
	}
}

func TestPruneCookieKeys(t *testing.T) {
	keys := []model.CookieKeyPair{
		NewCookieKeyPair(epoch.Add(-72*time.Hour), time.Hour, time.Hour),
		NewCookieKeyPair(epoch, time.Hour, time.Hour),
	}
	kept := PruneCookieKeys(epoch, keys)
	if len(kept) != 1 || kept[0].Validity.MintFrom != epoch {
		t.Errorf("kept = %+v", kept)
	}
}

func TestBakeryFactoryFollowsSiteConfig(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	mem := state.NewMemoryStorage()
	f := NewBakeryFactory(clock, mem, false)

	b, err := f.Bakery(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BakeCookie(httptest.NewRecorder(), &model.AuthCookieData{}); err == nil {
		t.Errorf("minted with no keys configured")
	}

	if err := mem.SaveSiteConfig(ctx, siteWithKey(epoch)); err != nil {
		t.Fatal(err)
	}
	b, err = f.Bakery(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bake(t, b, &model.AuthCookieData{RealUserID: 9})
}

func TestLadderStorageGuardsWrites(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStorage()
	s := NewLadderStorage(mem)

	anon := ctx
	user := UserIdentityInContext(ctx, &model.UserIdentity{ID: 5, Nick: "pat"})
	admin := AdminContext(ctx)

	for name, c := range map[string]context.Context{"anonymous": anon, "user": user} {
		_, err := s.CreateGame(c, &model.Game{Name: "Nope"})
		if !errors.Is(err, ErrPermissionDenied) || he.StatusCode(err) != http.StatusForbidden {
			t.Errorf("%s CreateGame: %v", name, err)
		}
	}

	id, err := s.CreateGame(admin, &model.Game{Name: "Yes"})
	if err != nil {
		t.Fatal(err)
	}
	vid, err := s.CreateVersion(admin, &model.GameVersion{GameID: id, Name: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveLadder(user, &model.Ladder{VersionID: vid}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("user SaveLadder: %v", err)
	}
	if err := s.DeleteGame(anon, id); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("anonymous DeleteGame: %v", err)
	}

	games, err := s.FetchGames(anon)
	if err != nil || len(games) != 1 {
		t.Errorf("anonymous read: %v, %v", games, err)
	}
}

func TestUserStorageGuards(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStorage()
	s := NewUserStorage(mem)
	admin := AdminContext(ctx)

	if err := s.CreateUser(ctx, "pat", "pat@example.com", "x", false); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("anonymous CreateUser: %v", err)
	}
	if err := s.CreateUser(admin, "pat", "pat@example.com", "x", false); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateUser(admin, "sam", "sam@example.com", "x", false); err != nil {
		t.Fatal(err)
	}
	pat, err := s.FetchUserRow(ctx, "pat")
	if err != nil {
		t.Fatal(err)
	}
	sam, err := s.FetchUserRow(ctx, "sam")
	if err != nil {
		t.Fatal(err)
	}

	asPat := UserIdentityInContext(ctx, &pat.UserIdentity)
	if err := s.ReplacePassword(asPat, pat.ID, "y", epoch); err != nil {
		t.Errorf("replacing own password: %v", err)
	}
	if err := s.ReplacePassword(asPat, sam.ID, "y", epoch); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("replacing someone else's password: %v", err)
	}
	if _, err := s.FetchUsers(asPat); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-admin FetchUsers: %v", err)
	}
}

func TestStorageGuardsEverything(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStorage()
	s := NewStorage(mem)
	admin := AdminContext(ctx)
	user := UserIdentityInContext(ctx, &model.UserIdentity{ID: 5, Nick: "pat"})

	if _, err := s.FetchSiteConfig(user); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("user FetchSiteConfig: %v", err)
	}
	sc, err := s.FetchSiteConfig(admin)
	if err != nil {
		t.Fatal(err)
	}
	sc.Name = "renamed"
	if err := s.SaveSiteConfig(user, sc); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("user SaveSiteConfig: %v", err)
	}
	if err := s.SaveSiteConfig(admin, sc); err != nil {
		t.Errorf("admin SaveSiteConfig: %v", err)
	}

	if err := s.RemoveExpiredPasswords(user, epoch); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("user RemoveExpiredPasswords: %v", err)
	}
	if err := s.AddPassword(user, 6, "hash"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("user adding a password for someone else: %v", err)
	}

	o, err := s.FetchOverview(admin)
	if err != nil || !o.IsAdmin {
		t.Errorf("admin overview = %+v, %v", o, err)
	}
	o, err = s.FetchOverview(user)
	if err != nil || o.IsAdmin {
		t.Errorf("user overview = %+v, %v", o, err)
	}

	s.Close()
}

func TestIdentityInContext(t *testing.T) {
	ctx := context.Background()
	if UserFromContext(ctx) != nil || IsAdmin(ctx) {
		t.Errorf("visitor has an identity")
	}
	pat := UserIdentityInContext(ctx, &model.UserIdentity{ID: 5, Nick: "pat"})
	if u := UserFromContext(pat); u == nil || u.Nick != "pat" || IsAdmin(pat) {
		t.Errorf("pat = %+v, admin %v", u, IsAdmin(pat))
	}
	if !IsAdmin(AdminContext(ctx)) {
		t.Errorf("console isn't admin")
	}
}
