package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const principalXML = `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/</d:href>
    <d:propstat>
      <d:prop>
        <d:current-user-principal>
          <d:href>/principals/alice/</d:href>
        </d:current-user-principal>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

// Uppercase prefixes on purpose; decoding must not depend on what the
// server picked.
const homeSetXML = `<?xml version="1.0" encoding="UTF-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/principals/alice/</D:href>
    <D:propstat>
      <D:prop>
        <C:calendar-home-set>
          <D:href>/calendars/alice/</D:href>
        </C:calendar-home-set>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

const calendarListXML = `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav"
               xmlns:cs="http://calendarserver.org/ns/" xmlns:ica="http://apple.com/ns/ical/">
  <d:response>
    <d:href>/calendars/alice/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/></d:resourcetype>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/alice/work/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <d:displayname>Work</d:displayname>
        <ica:calendar-color>#FF6600</ica:calendar-color>
        <cs:getctag>ct-100</cs:getctag>
        <c:supported-calendar-component-set>
          <c:comp name="VEVENT"/>
          <c:comp name="VTODO"/>
        </c:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/alice/tasks/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <d:displayname>Tasks</d:displayname>
        <c:supported-calendar-component-set>
          <c:comp name="VTODO"/>
        </c:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/alice/journal/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
    <d:propstat>
      <d:prop>
        <d:displayname/>
        <cs:getctag/>
      </d:prop>
      <d:status>HTTP/1.1 404 Not Found</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

// Default DAV: namespace here, calendar-data prefixed.
const reportXML = `<?xml version="1.0" encoding="UTF-8"?>
<multistatus xmlns="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <response>
    <href>/calendars/alice/work/ev1.ics</href>
    <propstat>
      <prop>
        <getetag>"tag-1"</getetag>
        <cal:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:ev1@example.com
DTSTAMP:20260301T090000Z
DTSTART:20260302T100000Z
SUMMARY:Standup
END:VEVENT
END:VCALENDAR</cal:calendar-data>
      </prop>
      <status>HTTP/1.1 200 OK</status>
    </propstat>
  </response>
  <response>
    <href>/calendars/alice/work/ev2.ics</href>
    <propstat>
      <prop>
        <getetag>"tag-2"</getetag>
        <cal:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:ev2@example.com
DTSTAMP:20260301T090000Z
DTSTART:20260305T140000Z
SUMMARY:Planning
END:VEVENT
END:VCALENDAR</cal:calendar-data>
      </prop>
      <status>HTTP/1.1 200 OK</status>
    </propstat>
  </response>
  <response>
    <href>/calendars/alice/work/broken.ics</href>
    <propstat>
      <prop/>
      <status>HTTP/1.1 404 Not Found</status>
    </propstat>
  </response>
</multistatus>`

const freshETagXML = `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/calendars/alice/work/fresh.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"e-fresh"</d:getetag>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

type recordedRequest struct {
	Method  string
	Path    string
	Depth   string
	IfMatch string
	CType   string
	Body    string
}

type fakeServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Depth:   r.Header.Get("Depth"),
		IfMatch: r.Header.Get("If-Match"),
		CType:   r.Header.Get("Content-Type"),
		Body:    string(body),
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != "alice" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeMultistatus := func(payload string) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(payload))
	}

	switch r.Method + " " + r.URL.Path {
	case "PROPFIND /":
		writeMultistatus(principalXML)
	case "PROPFIND /principals/alice/":
		writeMultistatus(homeSetXML)
	case "PROPFIND /calendars/alice/":
		writeMultistatus(calendarListXML)
	case "PROPFIND /calendars/alice/work/fresh.ics":
		writeMultistatus(freshETagXML)
	case "REPORT /calendars/alice/work/":
		writeMultistatus(reportXML)
	case "PUT /calendars/alice/work/ev1.ics":
		if rec.IfMatch != "" && rec.IfMatch != `"e-1"` {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		w.Header().Set("ETag", `"e-2"`)
		w.WriteHeader(http.StatusNoContent)
	case "PUT /calendars/alice/work/fresh.ics":
		w.WriteHeader(http.StatusCreated)
	case "PUT /calendars/alice/work/forbidden.ics":
		w.WriteHeader(http.StatusForbidden)
	case "DELETE /calendars/alice/work/ev1.ics":
		if rec.IfMatch != "" && rec.IfMatch != `"e-2"` {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "DELETE /calendars/alice/work/gone.ics":
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) find(method, path string) *recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.requests {
		if f.requests[i].Method == method && f.requests[i].Path == path {
			return &f.requests[i]
		}
	}
	return nil
}

func newTestClient(t *testing.T, f *fakeServer) Client {
	t.Helper()
	c, err := New(f.srv.URL, "alice", "secret", nil)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not a url", "alice", "secret", nil)
	assert.Error(t, err)

	_, err = New("ftp://example.com", "alice", "secret", nil)
	assert.Error(t, err)
}

func TestLoginDiscovery(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	require.NoError(t, c.Login(context.Background()))

	cl := c.(*client)
	assert.Equal(t, f.srv.URL+"/principals/alice/", cl.principalURL)
	assert.Equal(t, f.srv.URL+"/calendars/alice/", cl.homeSetURL)

	root := f.find("PROPFIND", "/")
	require.NotNil(t, root)
	assert.Equal(t, "0", root.Depth)
	assert.Contains(t, root.Body, "current-user-principal")

	principal := f.find("PROPFIND", "/principals/alice/")
	require.NotNil(t, principal)
	assert.Equal(t, "0", principal.Depth)
	assert.Contains(t, principal.Body, "calendar-home-set")
}

func TestLoginAuthRejected(t *testing.T) {
	f := newFakeServer(t)
	c, err := New(f.srv.URL, "alice", "wrong", nil)
	require.NoError(t, err)

	err = c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestFetchCalendars(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	calendars, err := c.FetchCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, calendars, 2)

	work := calendars[0]
	assert.Equal(t, f.srv.URL+"/calendars/alice/work/", work.URL)
	assert.Equal(t, "Work", work.Name)
	assert.Equal(t, "#FF6600", work.Color)
	assert.Equal(t, "ct-100", work.CTag)

	// No displayname anywhere, so the collection segment names it.
	journal := calendars[1]
	assert.Equal(t, f.srv.URL+"/calendars/alice/journal/", journal.URL)
	assert.Equal(t, "journal", journal.Name)
	assert.Empty(t, journal.CTag)

	for _, cal := range calendars {
		assert.NotContains(t, cal.URL, "/tasks/")
	}

	listing := f.find("PROPFIND", "/calendars/alice/")
	require.NotNil(t, listing)
	assert.Equal(t, "1", listing.Depth)
	assert.Contains(t, listing.Body, "supported-calendar-component-set")
}

func TestFetchCalendarObjects(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)
	require.NoError(t, c.Login(context.Background()))

	objects, err := c.FetchCalendarObjects(context.Background(), f.srv.URL+"/calendars/alice/work/")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, f.srv.URL+"/calendars/alice/work/ev1.ics", objects[0].URL)
	assert.Equal(t, `"tag-1"`, objects[0].ETag)
	assert.Contains(t, objects[0].Data, "BEGIN:VCALENDAR")
	assert.Contains(t, objects[0].Data, "UID:ev1@example.com")

	assert.Equal(t, `"tag-2"`, objects[1].ETag)
	assert.Contains(t, objects[1].Data, "UID:ev2@example.com")

	report := f.find("REPORT", "/calendars/alice/work/")
	require.NotNil(t, report)
	assert.Equal(t, "1", report.Depth)
	assert.Contains(t, report.Body, `name="VEVENT"`)
	assert.Contains(t, report.Body, "calendar-data")
}

func TestPutUpdateSendsIfMatch(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	etag, err := c.PutCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/ev1.ics", `"e-1"`, []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	require.NoError(t, err)
	assert.Equal(t, `"e-2"`, etag)

	put := f.find("PUT", "/calendars/alice/work/ev1.ics")
	require.NotNil(t, put)
	assert.Equal(t, `"e-1"`, put.IfMatch)
	assert.Equal(t, "text/calendar; charset=utf-8", put.CType)
	assert.Contains(t, put.Body, "BEGIN:VCALENDAR")
}

func TestPutStaleETagFails(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	_, err := c.PutCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/ev1.ics", `"e-stale"`, []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "412")
}

func TestPutCreateFetchesETagWhenHeaderMissing(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	etag, err := c.PutCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/fresh.ics", "", []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	require.NoError(t, err)
	assert.Equal(t, `"e-fresh"`, etag)

	put := f.find("PUT", "/calendars/alice/work/fresh.ics")
	require.NotNil(t, put)
	assert.Empty(t, put.IfMatch)

	refetch := f.find("PROPFIND", "/calendars/alice/work/fresh.ics")
	require.NotNil(t, refetch)
	assert.Contains(t, refetch.Body, "getetag")
}

func TestPutServerError(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	_, err := c.PutCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/forbidden.ics", "", []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDeleteCalendarObject(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	err := c.DeleteCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/ev1.ics", `"e-2"`)
	require.NoError(t, err)

	del := f.find("DELETE", "/calendars/alice/work/ev1.ics")
	require.NotNil(t, del)
	assert.Equal(t, `"e-2"`, del.IfMatch)
}

func TestDeleteAlreadyGone(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	err := c.DeleteCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/gone.ics", `"whatever"`)
	assert.NoError(t, err)
}

func TestDeleteStaleETagFails(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)

	err := c.DeleteCalendarObject(context.Background(),
		f.srv.URL+"/calendars/alice/work/ev1.ics", `"e-stale"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "412")
}

func TestPropfindBodyNamespaces(t *testing.T) {
	body, err := propfindBody(
		propResourceType,
		propDisplayName,
		propGetETag,
		propCTag,
		propCalendarColor,
		propCalendarHomeSet,
		"no-such-prop")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(body))

	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "propfind", root.Tag)
	assert.Equal(t, "d", root.Space)

	var prop *etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag == "prop" {
			prop = child
		}
	}
	require.NotNil(t, prop)

	var tags []string
	for _, child := range prop.ChildElements() {
		tags = append(tags, child.Space+":"+child.Tag)
	}
	assert.ElementsMatch(t, []string{
		"d:resourcetype",
		"d:displayname",
		"d:getetag",
		"cs:getctag",
		"ica:calendar-color",
		"c:calendar-home-set",
	}, tags)
}

func TestResolveRelativeHref(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f)
	cl := c.(*client)

	assert.Equal(t, f.srv.URL+"/a/b/", cl.resolve("/a/b/"))
	assert.Equal(t, "https://other.example/x", cl.resolve("https://other.example/x"))
	assert.True(t, strings.HasPrefix(cl.resolve("/"), f.srv.URL))
}
