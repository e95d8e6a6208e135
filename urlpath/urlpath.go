// Package urlpath reads typed values out of ServeMux path wildcards.
package urlpath

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ts4z/rungs/he"
)

// TarpitDelay is how long a client sending unparseable IDs waits for its 400.
var TarpitDelay = 10 * time.Second

// IDPathValue extracts the "id" path variable from the request and parses it.
//
// On error, an error is reported to the client, and a delay is imposed in case
// the client is sending crap in a tight loop.  The delay ends early if the
// client hangs up.
func IDPathValue(w http.ResponseWriter, r *http.Request) (int64, error) {
	return PathID(w, r, "id")
}

// PathID is IDPathValue for a wildcard with some other name.  IDs are
// positive; zero and negatives are refused like anything else unparseable.
func PathID(w http.ResponseWriter, r *http.Request, name string) (int64, error) {
	id, err := parseID(r.PathValue(name))
	if err != nil {
		tarpit(r)
		he.SendErrorToHTTPClient(w, "parse URL", err)
		return -1, err
	}
	return id, nil
}

func tarpit(r *http.Request) {
	if TarpitDelay <= 0 {
		return
	}
	t := time.NewTimer(TarpitDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.Context().Done():
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1, he.HTTPCodedErrorf(http.StatusBadRequest, "can't parse id from url path: %v", err)
	}
	if id <= 0 {
		return -1, he.HTTPCodedErrorf(http.StatusBadRequest, "id %d out of range", id)
	}
	return id, nil
}
