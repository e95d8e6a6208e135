package webapp

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"

	"github.com/ts4z/rungs/app/handlers"
	"github.com/ts4z/rungs/assets"
	"github.com/ts4z/rungs/compare"
	"github.com/ts4z/rungs/dep"
	"github.com/ts4z/rungs/gossip"
	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/middleware"
	"github.com/ts4z/rungs/middleware/c2ctx"
	"github.com/ts4z/rungs/middleware/labrea"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/permission"
	"github.com/ts4z/rungs/state"
	"github.com/ts4z/rungs/textutil"
	"github.com/ts4z/rungs/urlpath"
	"github.com/ts4z/rungs/varz"
)

var (
	comparisonsServed = varz.NewInt("comparisonsServed")
	badShareLinks     = varz.NewInt("badShareLinks")
	gamesCompared     = varz.NewMap("gamesCompared")
	loginFailures     = varz.NewInt("loginFailures")
)

var templateFuncs template.FuncMap = template.FuncMap{
	"percent": textutil.FormatPercent,
	"slug":    textutil.Slugify,
}

type nower interface {
	Now() time.Time
}

// Config holds the configuration for creating a new App.
type Config struct {
	// LadderStorage should already be wrapped in permission.LadderStorage.
	LadderStorage state.LadderStorage
	// SiteStorage is read without a user, for CORS origins; it must not be
	// the permission-checking wrapper.
	SiteStorage   state.SiteStorage
	UserStorage   state.UserStorage
	BakeryFactory *permission.BakeryFactory
	Clock         nower
	SubFS         fs.FS

	FetchConcurrency int
	// ExtraAllowedOrigins are CORS origins on top of the site config's.
	ExtraAllowedOrigins []string
	DisableCaching      bool
	// Sleep is how the tarpit waits; nil means time.Sleep.
	Sleep func(time.Duration)

	// Gossiper, if set, serves long-polls for ladder changes.  Writes only
	// reach it if LadderStorage goes through a gossip.LadderStorage.
	Gossiper *gossip.LadderGossiper
	// ListenTimeout bounds a long-poll; zero means defaultListenTimeout.
	ListenTimeout time.Duration
}

const defaultListenTimeout = 50 * time.Second

// App is the main web application.
type App struct {
	templates *template.Template
	subFS     fs.FS

	// dependencies
	ladderStorage state.LadderStorage
	siteStorage   state.SiteStorage
	userStorage   state.UserStorage
	bakeryFactory *permission.BakeryFactory
	clock         nower
	loader        *compare.Loader
	gossiper      *gossip.LadderGossiper
	listenTimeout time.Duration

	// internals
	mux     *http.ServeMux
	handler http.Handler
}

func allowedOrigins(sc *model.SiteConfig, extra []string) []string {
	r := []string{}
	for _, origin := range sc.AllowedOriginDomains {
		r = append(r, fmt.Sprintf("https://%s", origin), fmt.Sprintf("http://%s", origin))
	}
	r = append(r, extra...)
	for _, origin := range r {
		log.Printf("CORS allowing origin %s", origin)
	}
	return r
}

// New creates a new App with the given configuration.
func New(ctx context.Context, config *Config) (*App, error) {
	app := &App{
		ladderStorage: dep.Required(config.LadderStorage),
		siteStorage:   dep.Required(config.SiteStorage),
		userStorage:   dep.Required(config.UserStorage),
		bakeryFactory: dep.Required(config.BakeryFactory),
		clock:         dep.Required(config.Clock),
		subFS:         dep.Required(config.SubFS),
		gossiper:      config.Gossiper,
		listenTimeout: config.ListenTimeout,
		mux:           http.NewServeMux(),
	}
	if app.listenTimeout <= 0 {
		app.listenTimeout = defaultListenTimeout
	}
	app.loader = compare.NewLoader(app.ladderStorage, config.FetchConcurrency)

	// Prime these so we can check for errors.
	sc, err := app.siteStorage.FetchSiteConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get SiteConfig: %w", err)
	}
	if _, err = app.bakeryFactory.Bakery(ctx); err != nil {
		return nil, fmt.Errorf("can't create bakery: %w", err)
	}

	if err := app.loadTemplates(); err != nil {
		return nil, err
	}
	app.InstallHandlers(config.DisableCaching)

	// Stack the handlers together.
	c2c := c2ctx.Handler(&c2ctx.Config{
		BakeryFactory: app.bakeryFactory,
		UserStorage:   app.userStorage,
		Next:          app.mux,
	})
	logger := middleware.NewRequestLogger(c2c, app.clock)
	tarpit := labrea.New(&labrea.Config{
		// Use real clock here for sub-ms precision.
		Clock: clockwork.NewRealClock(),
		Next:  logger,
		Sleep: config.Sleep,
	})
	corsMW := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(sc, config.ExtraAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
		ExposedHeaders:   []string{middleware.RequestIDHeader},
	})
	app.handler = corsMW.Handler(tarpit)

	return app, nil
}

// Handler returns the configured HTTP handler.
func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) handleFunc(pattern string, handler func(context.Context, http.ResponseWriter, *http.Request)) {
	app.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		handler(r.Context(), w, r)
	})
}

func (app *App) handleFuncTakingID(pattern string, handler func(context.Context, int64, http.ResponseWriter, *http.Request)) {
	app.handleFunc(pattern, func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		id, err := urlpath.IDPathValue(w, r)
		if err != nil {
			return
		}
		handler(ctx, id, w, r)
	})
}

func (app *App) requiringAdminHandleFunc(pattern string, handler func(context.Context, http.ResponseWriter, *http.Request)) {
	app.handleFunc(pattern, func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		if !permission.IsAdmin(ctx) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		handler(ctx, w, r)
	})
}

func (app *App) requiringAdminTakingIDHandleFunc(pattern string, handler func(context.Context, int64, http.ResponseWriter, *http.Request)) {
	app.handleFuncTakingID(pattern, func(ctx context.Context, id int64, w http.ResponseWriter, r *http.Request) {
		if !permission.IsAdmin(ctx) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		handler(ctx, id, w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		he.SendJSONErrorToHTTPClient(w, "marshal response", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writ, err := w.Write(bytes)
	if err != nil {
		log.Printf("error writing response to client: %v", err)
	} else if writ != len(bytes) {
		log.Println("short write to client")
	}
}

// InstallHandlers registers all HTTP routes.
func (app *App) InstallHandlers(disableCaching bool) {
	app.handleFunc("GET /{$}", app.handleCompare)

	app.handleFunc("GET /favicon.ico", func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, app.subFS, "favicon.svg")
	})

	app.handleFunc("/login", app.handleLogin)

	app.handleFunc("/logout", func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		if bakery, err := app.bakeryFactory.Bakery(ctx); err != nil {
			log.Printf("can't get bakery to log out: %v", err)
		} else {
			bakery.ClearCookie(w)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	app.mux.HandleFunc("GET /robots.txt", handlers.HandleRobotsTXT)

	// anything in fs is a file trivially shared
	app.mux.Handle("GET /fs/", middleware.NewCacheHeaderAdder(&middleware.CacheHeaderAdderConfig{
		Next:     http.StripPrefix("/fs/", http.FileServer(http.FS(app.subFS))),
		MaxAge:   time.Hour,
		Disabled: disableCaching,
	}))

	app.mux.Handle("GET /debug/vars", expvar.Handler())

	api := func(pattern string, h func(context.Context, http.ResponseWriter, *http.Request)) {
		app.mux.Handle(pattern, middleware.NewCacheHeaderAdder(&middleware.CacheHeaderAdderConfig{
			Next: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h(r.Context(), w, r)
			}),
			MaxAge:   time.Minute,
			Disabled: disableCaching,
		}))
	}
	api("GET /api/games", app.handleAPIGames)
	api("GET /api/games/{id}/versions", app.withID(app.handleAPIVersions))
	api("GET /api/games/versions/{id}/ranks", app.withID(app.handleAPIRanks))
	app.handleFunc("GET /api/compare", app.handleAPICompare)
	if app.gossiper != nil {
		app.handleFuncTakingID("GET /api/games/versions/{id}/listen", app.handleAPIListen)
	}

	app.requiringAdminHandleFunc("GET /manage", app.handleManage)
	app.requiringAdminTakingIDHandleFunc("/manage/ladder/{id}", app.handleManageLadder)
}

// withID is handleFuncTakingID for handlers registered some other way.
func (app *App) withID(handler func(context.Context, int64, http.ResponseWriter, *http.Request)) func(context.Context, http.ResponseWriter, *http.Request) {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		id, err := urlpath.IDPathValue(w, r)
		if err != nil {
			return
		}
		handler(ctx, id, w, r)
	}
}

func (app *App) loadTemplates() error {
	var err error
	if app.templates, err = template.New("root").Funcs(templateFuncs).ParseFS(assets.Templates, "templates/*.tmpl"); err != nil {
		return fmt.Errorf("error loading embedded templates: %w", err)
	}
	names := []string{}
	for _, tmpl := range app.templates.Templates() {
		names = append(names, tmpl.Name())
	}
	log.Printf("loaded templates: %s", strings.Join(names, ", "))
	return nil
}

func (app *App) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := app.templates.ExecuteTemplate(w, name, data); err != nil {
		// Headers are gone by now; all we can do is log.
		log.Printf("can't render %s: %v", name, err)
	}
}

// Wrapper to just return the input context.
func contextualizer(ctx context.Context) func(net.Listener) context.Context {
	return func(_ net.Listener) context.Context {
		return ctx
	}
}

// Serve starts the HTTP server on the given listen address, and shuts it
// down when ctx ends.
func (app *App) Serve(ctx context.Context, listenAddress string) error {
	server := &http.Server{
		Addr:         listenAddress,
		Handler:      app.handler,
		BaseContext:  contextualizer(ctx),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  time.Hour,
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", listenAddress)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		wg.Wait()
		return nil
	}
	return fmt.Errorf("server exited: %w", err)
}
