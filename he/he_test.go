package he

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusCode(t *testing.T) {
	base := HTTPCodedErrorf(404, "no game %d", 3)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"coded", base, 404},
		{"wrapped", fmt.Errorf("loading: %w", base), 404},
		{"plain", errors.New("boom"), 500},
		{"new", New(400, errors.New("bad")), 400},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("%s: StatusCode = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestSendErrorToHTTPClient(t *testing.T) {
	w := httptest.NewRecorder()
	SendErrorToHTTPClient(w, "fetch ladder", HTTPCodedErrorf(404, "no such version"))
	if w.Code != http.StatusNotFound {
		t.Errorf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "can't fetch ladder: no such version") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestSendJSONErrorHidesServerDetail(t *testing.T) {
	w := httptest.NewRecorder()
	SendJSONErrorToHTTPClient(w, "fetch games", errors.New("password=hunter2"))
	if w.Code != 500 {
		t.Errorf("code = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "can't fetch games" {
		t.Errorf("error = %q", body["error"])
	}

	w = httptest.NewRecorder()
	SendJSONErrorToHTTPClient(w, "parse query", New(400, errors.New("bad games")))
	if w.Code != 400 || !strings.Contains(w.Body.String(), "bad games") {
		t.Errorf("client error: %d %q", w.Code, w.Body.String())
	}
}
