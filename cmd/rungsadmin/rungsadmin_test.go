package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ts4z/rungs/compare"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/state"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestGetKeyStatus(t *testing.T) {
	v := model.CookieKeyValidity{
		MintFrom:   now,
		MintUntil:  now.Add(time.Hour),
		HonorUntil: now.Add(2 * time.Hour),
	}
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-time.Second), "not yet active"},
		{now.Add(30 * time.Minute), "active"},
		{now.Add(90 * time.Minute), "obsolete"},
		{now.Add(3 * time.Hour), "expired"},
	}
	for _, tt := range tests {
		if got := getKeyStatus(tt.at, v); got != tt.want {
			t.Errorf("getKeyStatus(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestRotatedKeys(t *testing.T) {
	startOffset, mintDuration, honorOffset = time.Hour, 24*time.Hour, 48*time.Hour
	old := model.CookieKeyPair{Validity: model.CookieKeyValidity{HonorUntil: now.Add(-time.Minute)}}
	current := model.CookieKeyPair{Validity: model.CookieKeyValidity{HonorUntil: now.Add(time.Minute)}}

	keys, fresh := rotatedKeys(now, []model.CookieKeyPair{old, current})
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want the current one plus a fresh one", len(keys))
	}
	if keys[0] != current || keys[1] != fresh {
		t.Errorf("keys = %+v", keys)
	}
	if !fresh.Validity.MintFrom.Equal(now.Add(time.Hour)) ||
		!fresh.Validity.MintUntil.Equal(now.Add(25*time.Hour)) ||
		!fresh.Validity.HonorUntil.Equal(now.Add(73*time.Hour)) {
		t.Errorf("fresh validity = %+v", fresh.Validity)
	}
	if fresh.HashKey64 == "" || fresh.BlockKey64 == "" || fresh.HashKey64 == current.HashKey64 {
		t.Errorf("fresh key material looks wrong: %+v", fresh)
	}
}

func TestParseExpireTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", now, false},
		{"2030-01-02T03:04:05Z", time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"48h", now.Add(48 * time.Hour), false},
		{"next tuesday", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseExpireTime(now, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseExpireTime(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseExpireTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseVersionDate(t *testing.T) {
	got, err := parseVersionDate(now, "2024-01-09")
	if err != nil || !got.Equal(time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseVersionDate = %v, %v", got, err)
	}
	got, err = parseVersionDate(now, "")
	if err != nil || !got.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("empty date = %v, %v", got, err)
	}
	if _, err := parseVersionDate(now, "09/01/2024"); err == nil {
		t.Errorf("accepted a slashed date")
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "x"} {
		if _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) succeeded", bad)
		}
	}
}

func TestSelectionFromLink(t *testing.T) {
	for _, link := range []string{
		"https://rungs.example/?games=1,2&versions=7,0&tierId=42",
		"/?games=1,2&versions=7,0&tierId=42",
		"games=1,2&versions=7,0&tierId=42",
	} {
		sel, err := selectionFromLink(link)
		if err != nil {
			t.Errorf("%s: %v", link, err)
			continue
		}
		if len(sel.GameIDs) != 2 || sel.VersionFor(0) != 7 || sel.TierID == nil || *sel.TierID != 42 {
			t.Errorf("%s: got %+v", link, sel)
		}
	}
	if _, err := selectionFromLink("?games=one"); err == nil {
		t.Errorf("accepted a non-numeric game")
	}
}

func TestPrintLadder(t *testing.T) {
	p := func(f float64) *float64 { return &f }
	l := &model.Ladder{Ranks: []*model.Rank{
		{ID: 1, Name: "Iron", Tiers: []*model.Tier{{ID: 11, Name: "II", Percentile: p(0.1)}, {ID: 12, Name: "I"}}},
	}}
	var buf bytes.Buffer
	if err := printLadder(&buf, l); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Iron", "10.00%", "-"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintViewMarksAnchorAndMatch(t *testing.T) {
	ctx := context.Background()
	storage, err := state.NewDemoStorage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	games, err := storage.FetchGames(ctx)
	if err != nil || len(games) < 2 {
		t.Fatalf("demo games: %v, %v", games, err)
	}

	// Pin the first tier of the top rank of the first game's newest ladder.
	versions, err := storage.FetchVersions(ctx, games[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	l, err := storage.FetchLadder(ctx, versions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	anchor := l.Ranks[len(l.Ranks)-1].Tiers[0].ID

	sel, err := selectionFromLink("?games=" + strings.Join([]string{itoa(games[0].ID), itoa(games[1].ID)}, ",") + "&tierId=" + itoa(anchor))
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := compare.NewLoader(storage, 2).Load(ctx, sel)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Notices) != 0 {
		t.Errorf("unexpected notices: %+v", loaded.Notices)
	}

	var buf bytes.Buffer
	if err := printView(&buf, loaded.Coordinator.View()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "*") != 1 {
		t.Errorf("want exactly one anchor mark:\n%s", out)
	}
	if !strings.Contains(out, "== "+games[0].Name) || !strings.Contains(out, "== "+games[1].Name) {
		t.Errorf("missing game headers:\n%s", out)
	}
	if !strings.Contains(out, "share: ?games=") {
		t.Errorf("missing share link:\n%s", out)
	}
}

func itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}
