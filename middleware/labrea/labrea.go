// package labrea provides a middleware that provides a tarpit.
//
// Scanners looking for PHP admin pages get a slow, plausible 404 instead of
// a fast one, and don't reach the real handlers or the access log.
package labrea

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ts4z/rungs/dep"
	"github.com/ts4z/rungs/varz"
)

var tarpitted = varz.NewInt("tarpitted")

type Clock interface {
	Now() time.Time
}

type Handler struct {
	clock Clock
	sleep func(time.Duration)
	next  http.Handler

	paths map[string]struct{}

	mu      sync.Mutex
	rand    *rand.Rand
	ipCount map[string]int
}

var _ http.Handler = &Handler{}

var defaultPaths = []string{
	".env",
	".git",
	".git/config",
	".htaccess",
	".htpasswd",
	"admin",
	"blog/wp-admin",
	"blog/wp-login.php",
	"cms",
	"config.inc.php",
	"config.php",
	"dbadmin",
	"install.php",
	"myadmin",
	"phpmyadmin",
	"pma",
	"server-status",
	"setup.php",
	"sqladmin",
	"web/wp-login.php",
	"wordpress/wp-admin",
	"wordpress/wp-login.php",
	"wp-admin",
	"wp-admin/setup-config.php",
	"wp-includes/wlwmanifest.xml",
	"wp-login.php",
	"xmlrpc.php",
}

type Config struct {
	Clock Clock
	Next  http.Handler
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

func New(cf *Config) *Handler {
	pathMap := make(map[string]struct{}, len(defaultPaths))
	for _, p := range defaultPaths {
		pathMap[p] = struct{}{}
	}
	sleep := cf.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	clock := dep.Required(cf.Clock)
	return &Handler{
		clock:   clock,
		sleep:   sleep,
		next:    dep.Required(cf.Next),
		rand:    rand.New(rand.NewSource(clock.Now().UnixNano())),
		ipCount: map[string]int{},
		paths:   pathMap,
	}
}

func (h *Handler) countIP(ip string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipCount[ip]++
	if len(h.ipCount) > 1000 {
		// Reset if too many entries
		h.ipCount = map[string]int{}
	}

	return h.ipCount[ip]
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

var payload = []byte(`<!DOCTYPE HTML PUBLIC "-//IETF//DTD HTML 2.0//EN">
<html><head>
<title>404 Not Found</title>
</head><body>
<h1>Not Found</h1>
<p>The requested URL was not found on this server.</p>
</body></html>
`)

// Mishandle writes a 404 a few bytes at a time.  Repeat visitors wait
// longer.
func (h *Handler) Mishandle(w http.ResponseWriter, r *http.Request) {
	tarpitted.Add(1)
	minimum := time.Duration(11*h.countIP(r.RemoteAddr)) * time.Millisecond
	h.sleep(h.randomDelay(minimum, 3*time.Second))

	// Set headers to make it look legitimate
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Server", "Apache")
	w.WriteHeader(http.StatusNotFound)

	for pos := 0; pos < len(payload); {
		amt := min(10+h.intn(10), len(payload)-pos)
		w.Write(payload[pos : pos+amt])
		pos += amt
		flush(w)
		h.sleep(h.randomDelay(100*time.Millisecond, 300*time.Millisecond))
	}
}

func (h *Handler) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rand.Intn(n)
}

// randomDelay returns a random duration between lo and hi.  If lo has
// passed hi, hi it is.
func (h *Handler) randomDelay(lo, hi time.Duration) time.Duration {
	if lo >= hi {
		return hi
	}
	return lo + time.Duration(h.intn(int(hi-lo)))
}

// last2 is the last two segments of path, which is what scanners vary
// least.
func last2(path string) string {
	parts := strings.Split(path, "/")
	for len(parts) > 1 && parts[0] == "" {
		parts = parts[1:]
	}
	for len(parts) >= 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return path
	}
	first := max(0, len(parts)-2)
	return strings.Join(parts[first:], "/")
}

func (h *Handler) isBait(path string) bool {
	l2 := last2(path)
	if _, ok := h.paths[l2]; ok {
		return true
	}
	if i := strings.LastIndex(l2, "/"); i != -1 {
		_, ok := h.paths[l2[i+1:]]
		return ok
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isBait(r.URL.Path) {
		h.Mishandle(w, r)
		return
	}
	h.next.ServeHTTP(w, r)
}
