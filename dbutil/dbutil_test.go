package dbutil

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock, wrapped", fmt.Errorf("saving: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRequireEnvListsEverythingMissing(t *testing.T) {
	t.Setenv("RUNGS_TEST_SET", "x")
	os.Unsetenv("RUNGS_TEST_UNSET_A")
	os.Unsetenv("RUNGS_TEST_UNSET_B")

	_, err := requireEnv("RUNGS_TEST_SET", "RUNGS_TEST_UNSET_A", "RUNGS_TEST_UNSET_B")
	if err == nil {
		t.Fatal("no error")
	}
	for _, k := range []string{"RUNGS_TEST_UNSET_A", "RUNGS_TEST_UNSET_B"} {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error %q doesn't mention %s", err, k)
		}
	}

	vals, err := requireEnv("RUNGS_TEST_SET")
	if err != nil || vals["RUNGS_TEST_SET"] != "x" {
		t.Errorf("requireEnv = %v, %v", vals, err)
	}
}
