package password

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ts4z/rungs/model"
)

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := Hash(pw)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	expired := now.Add(-time.Hour)
	later := now.Add(time.Hour)

	row := &model.UserRow{
		UserIdentity: model.UserIdentity{ID: 7, Nick: "pat"},
		Passwords: []model.PasswordHash{
			{Hash: mustHash(t, "old"), ExpiresAt: &expired},
			{Hash: mustHash(t, "fading"), ExpiresAt: &later},
			{Hash: "!!!not base64"},
			{Hash: mustHash(t, "current")},
		},
	}
	ch, err := NewChecker(clock, row)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		pw string
		ok bool
	}{
		{"current", true},
		{"fading", true},
		{"old", false},
		{"", false},
		{"Current", false},
	}
	for _, tt := range tests {
		id, err := ch.Validate(tt.pw)
		if tt.ok {
			if err != nil || id.ID != 7 {
				t.Errorf("Validate(%q) = %v, %v", tt.pw, id, err)
			}
		} else if !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("Validate(%q) err = %v", tt.pw, err)
		}
	}

	clock.Advance(2 * time.Hour)
	ch, err = NewChecker(clock, row)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Validate("fading"); err == nil {
		t.Errorf("expired password still accepted")
	}
}

func TestNoUsablePassword(t *testing.T) {
	clock := clockwork.NewFakeClock()
	if _, err := NewChecker(clock, &model.UserRow{UserIdentity: model.UserIdentity{ID: 1}}); err == nil {
		t.Errorf("checker built with no passwords")
	}
}
