package urlpath

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPathID(t *testing.T) {
	TarpitDelay = 0

	tests := []struct {
		value string
		want  int64
		code  int
	}{
		{"42", 42, http.StatusOK},
		{"abc", -1, http.StatusBadRequest},
		{"0", -1, http.StatusBadRequest},
		{"-5", -1, http.StatusBadRequest},
		{"", -1, http.StatusBadRequest},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		r.SetPathValue("id", tt.value)
		w := httptest.NewRecorder()
		got, err := IDPathValue(w, r)
		if got != tt.want {
			t.Errorf("%q: got %d, want %d", tt.value, got, tt.want)
		}
		if (err != nil) != (tt.code != http.StatusOK) {
			t.Errorf("%q: err = %v", tt.value, err)
		}
		if w.Code != tt.code {
			t.Errorf("%q: code = %d, want %d", tt.value, w.Code, tt.code)
		}
	}
}

func TestTarpitEndsWhenClientLeaves(t *testing.T) {
	TarpitDelay = time.Hour
	defer func() { TarpitDelay = 0 }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
	r.SetPathValue("gameId", "nope")

	done := make(chan struct{})
	go func() {
		PathID(httptest.NewRecorder(), r, "gameId")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tarpit ignored the cancelled request")
	}
}
