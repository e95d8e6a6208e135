package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
)

func pct(f float64) *float64 {
	return &f
}

// exerciseLadderStorage runs the same checks against any backend.
func exerciseLadderStorage(t *testing.T, s LadderStorage) {
	t.Helper()
	ctx := context.Background()

	valID, err := s.CreateGame(ctx, &model.Game{Name: "Valorant"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	apexID, err := s.CreateGame(ctx, &model.Game{Name: "Apex Legends", Banner: "apex.png"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	games, err := s.FetchGames(ctx)
	if err != nil {
		t.Fatalf("FetchGames: %v", err)
	}
	if len(games) != 2 || games[0].ID != apexID || games[1].ID != valID {
		t.Fatalf("FetchGames not ordered by name: %+v", games)
	}
	if games[0].Banner != "apex.png" {
		t.Errorf("banner = %q", games[0].Banner)
	}

	older, err := s.CreateVersion(ctx, &model.GameVersion{GameID: valID, Name: "Ep 8", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	newer, err := s.CreateVersion(ctx, &model.GameVersion{GameID: valID, Name: "Ep 9", Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	versions, err := s.FetchVersions(ctx, valID)
	if err != nil {
		t.Fatalf("FetchVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].ID != newer || versions[1].ID != older {
		t.Fatalf("FetchVersions not newest first: %+v", versions)
	}
	if v, err := s.FetchVersion(ctx, newer); err != nil || v.GameID != valID || v.Name != "Ep 9" {
		t.Errorf("FetchVersion = %+v, %v", v, err)
	}

	if _, err := s.FetchVersion(ctx, 9999); he.StatusCode(err) != 404 {
		t.Errorf("missing version: %v", err)
	}
	if _, err := s.FetchGame(ctx, 9999); he.StatusCode(err) != 404 {
		t.Errorf("missing game: %v", err)
	}

	empty, err := s.FetchLadder(ctx, newer)
	if err != nil {
		t.Fatalf("FetchLadder(empty): %v", err)
	}
	if len(empty.Ranks) != 0 {
		t.Errorf("new version has %d ranks", len(empty.Ranks))
	}

	in := &model.Ladder{
		VersionID: newer,
		Ranks: []*model.Rank{
			{Name: "Iron", Color: "#444", Tiers: []*model.Tier{
				{Name: "1", Percentile: pct(0.1)},
				{Name: "2", Percentile: nil},
			}},
			{Name: "Unranked"},
			{Name: "Radiant", Badge: "radiant.png", Tiers: []*model.Tier{
				{Name: "", Percentile: pct(0.001)},
			}},
		},
	}
	if err := s.SaveLadder(ctx, in); err != nil {
		t.Fatalf("SaveLadder: %v", err)
	}
	got, err := s.FetchLadder(ctx, newer)
	if err != nil {
		t.Fatalf("FetchLadder: %v", err)
	}
	if got.VersionID != newer || len(got.Ranks) != 3 {
		t.Fatalf("FetchLadder = %+v", got)
	}
	wantNames := []string{"Iron", "Unranked", "Radiant"}
	for i, r := range got.Ranks {
		if r.Name != wantNames[i] {
			t.Errorf("rank %d = %q, want %q", i, r.Name, wantNames[i])
		}
	}
	iron := got.Ranks[0]
	if len(iron.Tiers) != 2 || iron.Tiers[0].Name != "1" || iron.Tiers[1].Name != "2" {
		t.Fatalf("iron tiers = %+v", iron.Tiers)
	}
	if iron.Tiers[0].Percentile == nil || *iron.Tiers[0].Percentile != 0.1 {
		t.Errorf("percentile not kept verbatim: %v", iron.Tiers[0].Percentile)
	}
	if iron.Tiers[1].Percentile != nil {
		t.Errorf("nil percentile came back as %v", *iron.Tiers[1].Percentile)
	}
	if len(got.Ranks[1].Tiers) != 0 {
		t.Errorf("rank without tiers grew %d", len(got.Ranks[1].Tiers))
	}
	if got.Ranks[2].Badge != "radiant.png" || got.Ranks[0].Color != "#444" {
		t.Errorf("rank attributes lost: %+v %+v", got.Ranks[0], got.Ranks[2])
	}

	// Saving again replaces the ladder rather than appending.
	if err := s.SaveLadder(ctx, &model.Ladder{VersionID: newer, Ranks: []*model.Rank{{Name: "Only"}}}); err != nil {
		t.Fatalf("SaveLadder again: %v", err)
	}
	got, err = s.FetchLadder(ctx, newer)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Ranks) != 1 || got.Ranks[0].Name != "Only" {
		t.Errorf("second save left %+v", got.Ranks)
	}

	if err := s.SaveLadder(ctx, &model.Ladder{VersionID: 9999}); he.StatusCode(err) != 404 {
		t.Errorf("SaveLadder to missing version: %v", err)
	}

	overview, err := s.FetchOverview(ctx)
	if err != nil {
		t.Fatalf("FetchOverview: %v", err)
	}
	if len(overview.Slugs) != 2 || overview.Slugs[1].VersionCount != 2 || overview.Slugs[0].VersionCount != 0 {
		t.Errorf("overview = %+v", overview.Slugs)
	}

	if err := s.DeleteGame(ctx, valID); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	versions, err = s.FetchVersions(ctx, valID)
	if err != nil || len(versions) != 0 {
		t.Errorf("versions survived their game: %v %v", versions, err)
	}
	if err := s.DeleteGame(ctx, valID); he.StatusCode(err) != 404 {
		t.Errorf("second delete: %v", err)
	}
}

func exerciseUserStorage(t *testing.T, s UserStorage) {
	t.Helper()
	ctx := context.Background()

	if err := s.CreateUser(ctx, "ada", "ada@example.com", "hash1", true); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	row, err := s.FetchUserRow(ctx, "ada")
	if err != nil {
		t.Fatalf("FetchUserRow: %v", err)
	}
	if !row.IsAdmin || row.Email != "ada@example.com" || len(row.Passwords) != 1 || row.Passwords[0].Hash != "hash1" {
		t.Fatalf("row = %+v", row)
	}

	u, err := s.FetchUserByUserID(ctx, row.ID)
	if err != nil || u.Nick != "ada" {
		t.Fatalf("FetchUserByUserID = %+v, %v", u, err)
	}

	expire := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.ReplacePassword(ctx, row.ID, "hash2", expire); err != nil {
		t.Fatalf("ReplacePassword: %v", err)
	}
	row, _ = s.FetchUserRow(ctx, "ada")
	if len(row.Passwords) != 2 {
		t.Fatalf("passwords after replace = %+v", row.Passwords)
	}
	if err := s.RemoveExpiredPasswords(ctx, expire.Add(time.Hour)); err != nil {
		t.Fatalf("RemoveExpiredPasswords: %v", err)
	}
	row, _ = s.FetchUserRow(ctx, "ada")
	if len(row.Passwords) != 1 || row.Passwords[0].Hash != "hash2" {
		t.Errorf("passwords after cleanup = %+v", row.Passwords)
	}

	users, err := s.FetchUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Errorf("FetchUsers = %v, %v", users, err)
	}
	if err := s.DeleteUserByNick(ctx, "ada"); err != nil {
		t.Fatalf("DeleteUserByNick: %v", err)
	}
	if _, err := s.FetchUserRow(ctx, "ada"); he.StatusCode(err) != 404 {
		t.Errorf("deleted user: %v", err)
	}
}

func exerciseSiteStorage(t *testing.T, s SiteStorage) {
	t.Helper()
	ctx := context.Background()
	sc, err := s.FetchSiteConfig(ctx)
	if err != nil {
		t.Fatalf("FetchSiteConfig: %v", err)
	}
	if sc.Name == "" {
		t.Errorf("default site config has no name")
	}
	sc.Name = "ladders"
	sc.AllowedOriginDomains = []string{"example.com"}
	if err := s.SaveSiteConfig(ctx, sc); err != nil {
		t.Fatalf("SaveSiteConfig: %v", err)
	}
	back, err := s.FetchSiteConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != "ladders" || len(back.AllowedOriginDomains) != 1 {
		t.Errorf("site config = %+v", back)
	}
}

func TestMemoryStorage(t *testing.T) {
	t.Run("ladders", func(t *testing.T) { exerciseLadderStorage(t, NewMemoryStorage()) })
	t.Run("users", func(t *testing.T) { exerciseUserStorage(t, NewMemoryStorage()) })
	t.Run("site", func(t *testing.T) { exerciseSiteStorage(t, NewMemoryStorage()) })
}

func openGorm(t *testing.T) *GormStorage {
	t.Helper()
	s, err := NewGormStorage(filepath.Join(t.TempDir(), "rungs.db"))
	if err != nil {
		t.Fatalf("NewGormStorage: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestGormStorage(t *testing.T) {
	t.Run("ladders", func(t *testing.T) { exerciseLadderStorage(t, openGorm(t)) })
	t.Run("users", func(t *testing.T) { exerciseUserStorage(t, openGorm(t)) })
	t.Run("site", func(t *testing.T) { exerciseSiteStorage(t, openGorm(t)) })
}

func TestDemoStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewDemoStorage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	games, err := s.FetchGames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) < 2 {
		t.Fatalf("only %d demo games", len(games))
	}
	for _, g := range games {
		versions, err := s.FetchVersions(ctx, g.ID)
		if err != nil || len(versions) == 0 {
			t.Fatalf("%s: versions %v, %v", g.Name, versions, err)
		}
		l, err := s.FetchLadder(ctx, versions[0].ID)
		if err != nil {
			t.Fatal(err)
		}
		if l.TierCount() == 0 {
			t.Errorf("%s has an empty demo ladder", g.Name)
		}
	}
}

func TestMemoryStorageHandsOutCopies(t *testing.T) {
	ctx := context.Background()
	s, err := NewDemoStorage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	games, _ := s.FetchGames(ctx)
	versions, _ := s.FetchVersions(ctx, games[0].ID)
	l, _ := s.FetchLadder(ctx, versions[0].ID)
	l.Ranks[0].Name = "scribbled"
	again, _ := s.FetchLadder(ctx, versions[0].ID)
	if again.Ranks[0].Name == "scribbled" {
		t.Errorf("caller modified stored ladder")
	}
}

func TestMemoryOverviewReportsFetchErrors(t *testing.T) {
	s, err := NewDemoStorage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if o, err := s.FetchOverview(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchOverview = %+v, %v; want context.Canceled", o, err)
	}
}
