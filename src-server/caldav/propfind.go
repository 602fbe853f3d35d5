package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Property names requestable through doPROPFIND. The switch in propfindBody
// maps each one onto its namespace.
const (
	propCurrentUserPrincipal  = "current-user-principal"
	propCalendarHomeSet       = "calendar-home-set"
	propResourceType          = "resourcetype"
	propDisplayName           = "displayname"
	propGetETag               = "getetag"
	propCTag                  = "getctag"
	propCalendarColor         = "calendar-color"
	propSupportedComponentSet = "supported-calendar-component-set"
)

// propfindBody renders the PROPFIND request document for the named
// properties. Names this client does not know are skipped, not rejected.
func propfindBody(props ...string) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	propfind := doc.CreateElement("d:propfind")
	propfind.CreateAttr("xmlns:d", nsDAV)
	propfind.CreateAttr("xmlns:c", nsCalDAV)
	propfind.CreateAttr("xmlns:cs", nsCS)
	propfind.CreateAttr("xmlns:ica", nsApple)

	propElem := propfind.CreateElement("d:prop")
	for _, name := range props {
		switch name {
		case propCurrentUserPrincipal, propResourceType, propDisplayName, propGetETag:
			propElem.CreateElement("d:" + name)
		case propCalendarHomeSet, propSupportedComponentSet:
			propElem.CreateElement("c:" + name)
		case propCTag:
			propElem.CreateElement("cs:" + name)
		case propCalendarColor:
			propElem.CreateElement("ica:" + name)
		}
	}
	return doc.WriteToString()
}

func (c *client) doPROPFIND(ctx context.Context, urlStr string, depth int, props ...string) (*multistatus, error) {
	body, err := propfindBody(props...)
	if err != nil {
		return nil, fmt.Errorf("caldav: building PROPFIND body: %w", err)
	}

	resolved := c.resolve(urlStr)
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", resolved, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("caldav: building PROPFIND request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", strconv.Itoa(depth))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caldav: PROPFIND %s: %w", resolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("caldav: PROPFIND %s returned status %d", resolved, resp.StatusCode)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("caldav: decoding PROPFIND response: %w", err)
	}

	c.logger.Debug("caldav: PROPFIND complete",
		"url", resolved,
		"depth", depth,
		"responses", len(ms.Responses))
	return &ms, nil
}

// fetchETag asks one object for its getetag. Used after PUTs the server
// answered without an ETag header.
func (c *client) fetchETag(ctx context.Context, objectURL string) (string, error) {
	ms, err := c.doPROPFIND(ctx, objectURL, 0, propGetETag)
	if err != nil {
		return "", err
	}
	for _, res := range ms.Responses {
		if etag, ok := collectProps(res).etag.Get(); ok && etag != "" {
			return etag, nil
		}
	}
	return "", fmt.Errorf("caldav: no etag reported for %s", objectURL)
}
