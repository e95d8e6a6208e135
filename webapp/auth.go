package webapp

import (
	"context"
	"log"
	"net/http"
	"net/url"

	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/password"
)

func loginError(msg string) string {
	return "/login?error=" + url.QueryEscape(msg)
}

func (app *App) handleLogin(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	case http.MethodGet:
		data := struct {
			Flash string
		}{Flash: r.URL.Query().Get("error")}
		app.render(w, "login.html.tmpl", data)
		return
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			he.SendErrorToHTTPClient(w, "parse login form", he.New(http.StatusBadRequest, err))
			return
		}
		nick := r.FormValue("username")
		pw := r.FormValue("password")
		if nick == "" || pw == "" {
			http.Redirect(w, r, loginError("username and password required"), http.StatusSeeOther)
			return
		}

		// Unknown user and wrong password look the same from outside.
		bad := func(why string, err error) {
			loginFailures.Add(1)
			log.Printf("login for %q failed (%s): %v", nick, why, err)
			http.Redirect(w, r, loginError("invalid user or password"), http.StatusSeeOther)
		}
		row, err := app.userStorage.FetchUserRow(ctx, nick)
		if err != nil {
			bad("fetch user", err)
			return
		}
		checker, err := password.NewChecker(app.clock, row)
		if err != nil {
			bad("no password", err)
			return
		}
		identity, err := checker.Validate(pw)
		if err != nil {
			bad("validate", err)
			return
		}

		bakery, err := app.bakeryFactory.Bakery(ctx)
		if err != nil {
			log.Printf("can't get bakery: %v", err)
			http.Redirect(w, r, loginError("internal error"), http.StatusSeeOther)
			return
		}
		err = bakery.BakeCookie(w, &model.AuthCookieData{
			RealUserID:      identity.ID,
			EffectiveUserID: identity.ID,
		})
		if err != nil {
			log.Printf("can't bake cookie: %v", err)
			http.Redirect(w, r, loginError("internal error baking cookie"), http.StatusSeeOther)
			return
		}

		http.Redirect(w, r, "/manage", http.StatusSeeOther)
	}
}
