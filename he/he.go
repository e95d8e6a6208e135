package he

import (
	"encoding/json"
	"errors"
	"fmt"
	"log" // all kids love log
	"net/http"
)

// HTTPError is an error that knows what HTTP status it deserves.
type HTTPError struct {
	code int
	err  error
}

func HTTPCodedErrorf(code int, f string, more ...any) *HTTPError {
	return &HTTPError{
		code: code,
		err:  fmt.Errorf(f, more...),
	}
}

func New(code int, err error) *HTTPError {
	return &HTTPError{
		code: code,
		err:  err,
	}
}

func (e *HTTPError) Error() string {
	return e.err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

func (e *HTTPError) Code() int {
	return e.code
}

// StatusCode digs an HTTPError out of err and returns its code, or 500 if
// there isn't one.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.code
	}
	return http.StatusInternalServerError
}

// SendErrorToHTTPClient sends err as an HTTP error.  If it happens to be our
// special HTTPCodedError, we can include a better respone code; otherwise,
// client gets 500 and it's on us.
func SendErrorToHTTPClient(w http.ResponseWriter, while string, err error) {
	code := StatusCode(err)
	txt := fmt.Sprintf("can't %s: %v", while, err)
	log.Println(txt)
	http.Error(w, txt, code)
}

// SendJSONErrorToHTTPClient is SendErrorToHTTPClient for the JSON API, which
// answers {"error": "..."}.
func SendJSONErrorToHTTPClient(w http.ResponseWriter, while string, err error) {
	code := StatusCode(err)
	txt := fmt.Sprintf("can't %s", while)
	log.Printf("%s: %v", txt, err)
	if code < 500 {
		// Client errors are the client's business; say what was wrong.
		txt = fmt.Sprintf("%s: %v", txt, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": txt})
}
