package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

type Clock interface {
	Now() time.Time
}

type requestIDKey struct{}

// RequestID returns the ID the logger gave this request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLogger is a middleware that logs the request.  Every request gets
// an ID, passed back in X-Request-Id, so a complaint can be matched to its
// log line.
type RequestLogger struct {
	next  http.Handler
	clock Clock
}

func NewRequestLogger(next http.Handler, clock Clock) *RequestLogger {
	return &RequestLogger{next: next, clock: clock}
}

func remoteAddr(r *http.Request) string {
	if r.Header.Get("X-Forwarded-For") != "" {
		return r.Header.Get("X-Forwarded-For")
	}
	return r.RemoteAddr
}

func (rl *RequestLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := rl.clock.Now()
	id := uuid.NewString()
	w.Header().Set(RequestIDHeader, id)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

	ww := &codeWatcher{w: w}
	rl.next.ServeHTTP(ww, r)
	code := ww.Code()
	duration := rl.clock.Now().Sub(start)
	log.Printf("[access log] %s %d %v %v %v (%v)", id, code, remoteAddr(r), r.Method, r.URL.RequestURI(), duration)
}
