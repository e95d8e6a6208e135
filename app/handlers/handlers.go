// Package handlers has tiny handlers with no dependencies.
package handlers

import (
	"io"
	"net/http"
)

var robotsLines = []string{
	"User-agent: *",
	"Allow: /$",
	"Disallow: /api/",
	"Disallow: /manage",
	"Disallow: /login",
	"Disallow: /debug/",
}

func HandleRobotsTXT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	for _, line := range robotsLines {
		io.WriteString(w, line+"\r\n")
	}
}
