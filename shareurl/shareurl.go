// Package shareurl turns a comparison selection into the query string of a
// shareable link and back.  It knows nothing about storage; whether the IDs
// name anything real is for the caller to decide.
package shareurl

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/textutil"
)

const (
	GamesParam    = "games"
	VersionsParam = "versions"
	TierParam     = "tierId"
)

// Selection is the part of a comparison that survives a round trip through a
// link: which games, which version of each, and which tier is pinned.
//
// VersionIDs lines up with GameIDs by position.  Zero, or a missing entry,
// means "whatever the default version is".
type Selection struct {
	GameIDs    []int64
	VersionIDs []int64
	TierID     *int64
}

// VersionFor returns the requested version of the i'th game, or zero.
func (s *Selection) VersionFor(i int) int64 {
	if i < 0 || i >= len(s.VersionIDs) {
		return 0
	}
	return s.VersionIDs[i]
}

// Encode renders s as a path-relative link.  With no games selected the link
// is just "/", and any tier is dropped along with them.
func Encode(s *Selection) string {
	if s == nil || len(s.GameIDs) == 0 {
		return "/"
	}

	versions := make([]int64, len(s.GameIDs))
	for i := range s.GameIDs {
		versions[i] = s.VersionFor(i)
	}

	// Built by hand: url.Values sorts the keys and escapes the commas.
	q := "?" + GamesParam + "=" + textutil.JoinIDs(s.GameIDs) +
		"&" + VersionsParam + "=" + textutil.JoinIDs(versions)
	if s.TierID != nil {
		q += "&" + TierParam + "=" + strconv.FormatInt(*s.TierID, 10)
	}
	return q
}

// Decode parses a query produced by Encode, or typed in by hand.  Absent
// parameters are fine.  Anything that isn't a list of integers is a 400.
func Decode(v url.Values) (*Selection, error) {
	s := &Selection{}

	var err error
	if s.GameIDs, err = textutil.ParseIDs(v.Get(GamesParam)); err != nil {
		return nil, he.HTTPCodedErrorf(http.StatusBadRequest, "bad %s parameter: %w", GamesParam, err)
	}
	if s.VersionIDs, err = textutil.ParseIDs(v.Get(VersionsParam)); err != nil {
		return nil, he.HTTPCodedErrorf(http.StatusBadRequest, "bad %s parameter: %w", VersionsParam, err)
	}

	if raw := v.Get(TierParam); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, he.HTTPCodedErrorf(http.StatusBadRequest, "bad %s parameter: %w", TierParam, err)
		}
		// tierId=0 never names a tier; treat it as absent.
		if id != 0 {
			s.TierID = &id
		}
	}

	return s, nil
}
