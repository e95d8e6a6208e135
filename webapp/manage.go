package webapp

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/ladderfile"
	"github.com/ts4z/rungs/model"
)

func (app *App) handleManage(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	o, err := app.ladderStorage.FetchOverview(ctx)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch overview", err)
		return
	}

	type gameVersions struct {
		Slug     model.GameSlug
		Versions []*model.GameVersion
	}
	games := []gameVersions{}
	for _, slug := range o.Slugs {
		versions, err := app.ladderStorage.FetchVersions(ctx, slug.GameID)
		if err != nil {
			he.SendErrorToHTTPClient(w, "fetch versions", err)
			return
		}
		games = append(games, gameVersions{Slug: slug, Versions: versions})
	}

	data := struct {
		Overview *model.Overview
		Games    []gameVersions
	}{Overview: o, Games: games}
	app.render(w, "manage.html.tmpl", data)
}

// handleManageLadder shows a version's ladder as CSV for editing, and saves
// it back on POST.
func (app *App) handleManageLadder(ctx context.Context, versionID int64, w http.ResponseWriter, r *http.Request) {
	version, err := app.ladderStorage.FetchVersion(ctx, versionID)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch version", err)
		return
	}
	game, err := app.ladderStorage.FetchGame(ctx, version.GameID)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch game", err)
		return
	}

	var flash, text string
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			he.SendErrorToHTTPClient(w, "parse form", he.New(http.StatusBadRequest, err))
			return
		}
		text = r.FormValue("CSV")
		ranks, err := ladderfile.Read(strings.NewReader(text), ladderfile.CSV)
		if err != nil {
			flash = fmt.Sprintf("Can't read that: %v", err)
			break
		}
		if err := app.ladderStorage.SaveLadder(ctx, &model.Ladder{VersionID: versionID, Ranks: ranks}); err != nil {
			log.Printf("can't save ladder %d: %v", versionID, err)
			flash = "Error saving ladder"
			break
		}
		http.Redirect(w, r, fmt.Sprintf("/manage/ladder/%d?saved=1", versionID), http.StatusSeeOther)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Query().Get("saved") != "" {
		flash = "Saved!"
	}

	l, err := app.ladderStorage.FetchLadder(ctx, versionID)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch ladder", err)
		return
	}
	if text == "" {
		var buf bytes.Buffer
		if err := ladderfile.Write(&buf, ladderfile.CSV, l.Ranks); err != nil {
			he.SendErrorToHTTPClient(w, "render ladder", err)
			return
		}
		text = buf.String()
	}

	data := struct {
		Game      *model.Game
		Version   *model.GameVersion
		Ladder    *model.Ladder
		TierCount int
		CSV       string
		Flash     string
		ViewURL   string
	}{
		Game:      game,
		Version:   version,
		Ladder:    l,
		TierCount: l.TierCount(),
		CSV:       text,
		Flash:     flash,
		ViewURL:   fmt.Sprintf("/?games=%d&versions=%d", game.ID, version.ID),
	}
	app.render(w, "manage-ladder.html.tmpl", data)
}
