// The `caldav` package talks to remote CalDAV servers over WebDAV: account
// discovery, calendar listing, object download and conditional writes.
//
// # References:
// - RFC4791 (CalDAV): https://datatracker.ietf.org/doc/html/rfc4791
// - RFC5397 (current-user-principal): https://datatracker.ietf.org/doc/html/rfc5397
//
// # Notes:
// - Request bodies are built with etree, multistatus responses decoded with
//   encoding/xml. Struct tags carry the namespace URL, not a prefix, so any
//   prefix the server picks still decodes.
// - Payloads travel through this package as raw text. Parsing, including the
//   repair pipeline for corrupted feeds, belongs to the ical package.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrAuthFailed reports that login discovery was rejected. Sync passes treat
// it as fatal for the whole pass, unlike per-request failures.
var ErrAuthFailed = errors.New("caldav: authentication failed")

const requestTimeout = 30 * time.Second

// RemoteCalendar is one event-capable collection found under the account's
// calendar home set.
type RemoteCalendar struct {
	URL   string
	Name  string
	Color string
	CTag  string
}

// RemoteObject is one calendar object as the server stores it, payload
// untouched.
type RemoteObject struct {
	URL  string
	ETag string
	Data string
}

// Client is the upstream surface the sync engine drives. One Client serves
// one account on one server.
type Client interface {
	Login(ctx context.Context) error
	FetchCalendars(ctx context.Context) ([]RemoteCalendar, error)
	FetchCalendarObjects(ctx context.Context, calendarURL string) ([]RemoteObject, error)
	PutCalendarObject(ctx context.Context, objectURL string, etag string, data []byte) (string, error)
	DeleteCalendarObject(ctx context.Context, objectURL string, etag string) error
}

type client struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *slog.Logger

	principalURL string
	homeSetURL   string
}

// New builds a Client for the server at baseURL using Basic Auth. The
// credentials are not checked until Login.
func New(baseURL, username, password string, logger *slog.Logger) (Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("caldav: invalid server url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("caldav: unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		httpClient: &http.Client{
			Transport: newBasicAuthTransport(username, password, nil, logger),
			Timeout:   requestTimeout,
		},
		baseURL: u,
		logger:  logger,
	}, nil
}

// Login resolves the account's principal and from it the calendar home set.
// Both PROPFINDs double as the credential check, so every failure on this
// path is reported as ErrAuthFailed.
func (c *client) Login(ctx context.Context) error {
	ms, err := c.doPROPFIND(ctx, c.baseURL.String(), 0, propCurrentUserPrincipal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	principal := firstProp(ms, func(p resourceProps) (string, bool) { return p.principal.Get() })
	if principal == "" {
		return fmt.Errorf("%w: server returned no current-user-principal", ErrAuthFailed)
	}
	c.principalURL = c.resolve(principal)

	ms, err = c.doPROPFIND(ctx, c.principalURL, 0, propCalendarHomeSet)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	home := firstProp(ms, func(p resourceProps) (string, bool) { return p.homeSet.Get() })
	if home == "" {
		return fmt.Errorf("%w: server returned no calendar-home-set", ErrAuthFailed)
	}
	c.homeSetURL = c.resolve(home)

	c.logger.Debug("caldav: login complete",
		"principal", c.principalURL,
		"home", c.homeSetURL)
	return nil
}

// FetchCalendars lists the home set at depth 1 and keeps the collections
// that are calendars holding events. A collection that does not announce a
// component set at all is kept; only an explicit set without VEVENT drops it.
func (c *client) FetchCalendars(ctx context.Context) ([]RemoteCalendar, error) {
	if c.homeSetURL == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	ms, err := c.doPROPFIND(ctx, c.homeSetURL, 1,
		propResourceType,
		propDisplayName,
		propCalendarColor,
		propCTag,
		propSupportedComponentSet)
	if err != nil {
		return nil, fmt.Errorf("caldav: listing calendars: %w", err)
	}

	var calendars []RemoteCalendar
	for _, res := range ms.Responses {
		props := collectProps(res)
		if !props.isCalendar || !props.supportsEvents() {
			continue
		}
		absURL := c.resolve(res.Href)
		name, _ := props.displayName.Get()
		if name == "" {
			name = collectionBasename(absURL)
		}
		color, _ := props.color.Get()
		ctag, _ := props.ctag.Get()
		calendars = append(calendars, RemoteCalendar{
			URL:   absURL,
			Name:  name,
			Color: color,
			CTag:  ctag,
		})
	}

	c.logger.Debug("caldav: calendars listed",
		"home", c.homeSetURL,
		"count", len(calendars))
	return calendars, nil
}

// resolve expands an href, which servers often send host-relative, against
// the client base URL. Absolute hrefs pass through unchanged.
func (c *client) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.baseURL.ResolveReference(ref).String()
}

// firstProp returns the first present value extracted by pick across all
// multistatus rows.
func firstProp(ms *multistatus, pick func(resourceProps) (string, bool)) string {
	for _, res := range ms.Responses {
		if v, ok := pick(collectProps(res)); ok && v != "" {
			return v
		}
	}
	return ""
}

// collectionBasename falls back to the last path segment when a calendar
// has no displayname.
func collectionBasename(absURL string) string {
	u, err := url.Parse(absURL)
	if err != nil {
		return absURL
	}
	return path.Base(strings.TrimSuffix(u.Path, "/"))
}
