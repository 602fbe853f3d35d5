package caldav

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// basicAuthTransport stamps Basic Auth onto every outgoing request and
// traces the exchange at debug level. WebDAV verbs pass through untouched.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
	logger   *slog.Logger
}

func newBasicAuthTransport(username, password string, base http.RoundTripper, logger *slog.Logger) *basicAuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &basicAuthTransport{
		username: username,
		password: password,
		base:     base,
		logger:   logger,
	}
}

// RoundTrip implements http.RoundTripper. Empty credentials fail before the
// request leaves the process, so misconfigured connections never hit the
// network anonymously.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.username == "" {
		return nil, errors.New("caldav: basic auth username is empty")
	}
	if t.password == "" {
		return nil, errors.New("caldav: basic auth password is empty")
	}

	body := ""
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err == nil {
			body = string(raw)
			req.Body = io.NopCloser(bytes.NewBuffer(raw))
		}
	}
	t.logger.Debug("caldav: outgoing request",
		"method", req.Method,
		"url", req.URL.String(),
		"depth", req.Header.Get("Depth"),
		"body", body)

	req.SetBasicAuth(t.username, t.password)
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp != nil {
		t.logger.Debug("caldav: incoming response",
			"method", req.Method,
			"url", req.URL.String(),
			"status", resp.Status)
	}
	return resp, err
}
