package webapp

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/ts4z/rungs/compare"
	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/permission"
	"github.com/ts4z/rungs/protocol"
	"github.com/ts4z/rungs/shareurl"
)

type versionLink struct {
	Name     string
	URL      string
	Selected bool
}

type addLink struct {
	Name string
	URL  string
}

// comparePage is the data behind compare.html.tmpl.
type comparePage struct {
	SiteName string
	IsAdmin  bool
	View     *compare.View
	Notices  []compare.Notice
	// VersionLinks lines up with View.Games.
	VersionLinks [][]versionLink
	AddLinks     []addLink
}

func (app *App) loadComparison(ctx context.Context, r *http.Request) (*compare.Loaded, error) {
	sel, err := shareurl.Decode(r.URL.Query())
	if err != nil {
		badShareLinks.Add(1)
		return nil, err
	}
	loaded, err := app.loader.Load(ctx, sel)
	if err != nil {
		return nil, err
	}
	comparisonsServed.Add(1)
	for _, g := range loaded.Coordinator.Games() {
		gamesCompared.Add(g.Name, 1)
	}
	return loaded, nil
}

// withVersion is share with the i'th game switched to versionID.
func withVersion(share *shareurl.Selection, i int, versionID int64) *shareurl.Selection {
	s := *share
	s.VersionIDs = append([]int64(nil), share.VersionIDs...)
	s.VersionIDs[i] = versionID
	return &s
}

// withGame is share with gameID appended at its newest version.
func withGame(share *shareurl.Selection, gameID int64) *shareurl.Selection {
	s := *share
	s.GameIDs = append(append([]int64(nil), share.GameIDs...), gameID)
	s.VersionIDs = append(append([]int64(nil), share.VersionIDs...), 0)
	return &s
}

func (app *App) handleCompare(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	loaded, err := app.loadComparison(ctx, r)
	if err != nil {
		he.SendErrorToHTTPClient(w, "load comparison", err)
		return
	}

	siteName := "rungs"
	if sc, err := app.siteStorage.FetchSiteConfig(ctx); err != nil {
		log.Printf("can't fetch site config: %v", err)
	} else if sc.Name != "" {
		siteName = sc.Name
	}

	c := loaded.Coordinator
	share := c.ShareSelection()
	page := &comparePage{
		SiteName: siteName,
		IsAdmin:  permission.IsAdmin(ctx),
		View:     c.View(),
		Notices:  loaded.Notices,
	}

	for i, gv := range page.View.Games {
		links := []versionLink{}
		for _, v := range gv.Versions {
			links = append(links, versionLink{
				Name:     v.Name,
				URL:      shareurl.Encode(withVersion(share, i, v.ID)),
				Selected: v.ID == gv.VersionID,
			})
		}
		page.VersionLinks = append(page.VersionLinks, links)
	}

	shown := map[int64]bool{}
	for _, g := range c.Games() {
		shown[g.ID] = true
	}
	for _, g := range loaded.AllGames {
		if !shown[g.ID] {
			page.AddLinks = append(page.AddLinks, addLink{Name: g.Name, URL: shareurl.Encode(withGame(share, g.ID))})
		}
	}

	app.render(w, "compare.html.tmpl", page)
}

// CompareResponse is the body of /api/compare.
type CompareResponse struct {
	ProtocolVersion int              `json:"protocolVersion"`
	View            *compare.View    `json:"view"`
	Notices         []compare.Notice `json:"notices"`
	Games           []*model.Game    `json:"allGames"`
}

func (app *App) handleAPICompare(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	loaded, err := app.loadComparison(ctx, r)
	if err != nil {
		he.SendJSONErrorToHTTPClient(w, "load comparison", err)
		return
	}
	notices := loaded.Notices
	if notices == nil {
		notices = []compare.Notice{}
	}
	writeJSON(w, &CompareResponse{
		ProtocolVersion: protocol.Version,
		View:            loaded.Coordinator.View(),
		Notices:         notices,
		Games:           loaded.AllGames,
	})
}

func (app *App) handleAPIGames(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	games, err := app.ladderStorage.FetchGames(ctx)
	if err != nil {
		he.SendJSONErrorToHTTPClient(w, "fetch games", err)
		return
	}
	writeJSON(w, games)
}

func (app *App) handleAPIVersions(ctx context.Context, gameID int64, w http.ResponseWriter, r *http.Request) {
	if _, err := app.ladderStorage.FetchGame(ctx, gameID); err != nil {
		he.SendJSONErrorToHTTPClient(w, "fetch game", err)
		return
	}
	versions, err := app.ladderStorage.FetchVersions(ctx, gameID)
	if err != nil {
		he.SendJSONErrorToHTTPClient(w, "fetch versions", err)
		return
	}
	writeJSON(w, versions)
}

func (app *App) handleAPIRanks(ctx context.Context, versionID int64, w http.ResponseWriter, r *http.Request) {
	if _, err := app.ladderStorage.FetchVersion(ctx, versionID); err != nil {
		he.SendJSONErrorToHTTPClient(w, "fetch version", err)
		return
	}
	l, err := app.ladderStorage.FetchLadder(ctx, versionID)
	if err != nil {
		he.SendJSONErrorToHTTPClient(w, "fetch ranks", err)
		return
	}
	writeJSON(w, l.Ranks)
}

// handleAPIListen holds the request until the version's ladder changes, then
// answers with its ranks like handleAPIRanks.  If nothing changes in time the
// answer is 204 and the client asks again.
func (app *App) handleAPIListen(ctx context.Context, versionID int64, w http.ResponseWriter, r *http.Request) {
	if _, err := app.ladderStorage.FetchVersion(ctx, versionID); err != nil {
		he.SendJSONErrorToHTTPClient(w, "fetch version", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, app.listenTimeout)
	defer cancel()

	l, err := app.gossiper.Listen(ctx, versionID)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, context.Canceled):
		// Client went away.
	case err != nil:
		he.SendJSONErrorToHTTPClient(w, "listen", err)
	default:
		writeJSON(w, l.Ranks)
	}
}
