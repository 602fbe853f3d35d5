package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

// calendarQueryBody renders the REPORT document asking for every VEVENT
// object in a collection, etag and raw payload included.
func calendarQueryBody() (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	query := doc.CreateElement("c:calendar-query")
	query.CreateAttr("xmlns:d", nsDAV)
	query.CreateAttr("xmlns:c", nsCalDAV)

	prop := query.CreateElement("d:prop")
	prop.CreateElement("d:getetag")
	prop.CreateElement("c:calendar-data")

	filter := query.CreateElement("c:filter")
	calFilter := filter.CreateElement("c:comp-filter")
	calFilter.CreateAttr("name", "VCALENDAR")
	eventFilter := calFilter.CreateElement("c:comp-filter")
	eventFilter.CreateAttr("name", "VEVENT")

	return doc.WriteToString()
}

// FetchCalendarObjects runs a calendar-query REPORT against one collection.
// Payloads come back exactly as the server sent them; rows without
// calendar-data are skipped.
func (c *client) FetchCalendarObjects(ctx context.Context, calendarURL string) ([]RemoteObject, error) {
	body, err := calendarQueryBody()
	if err != nil {
		return nil, fmt.Errorf("caldav: building REPORT body: %w", err)
	}

	resolved := c.resolve(calendarURL)
	req, err := http.NewRequestWithContext(ctx, "REPORT", resolved, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("caldav: building REPORT request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caldav: REPORT %s: %w", resolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("caldav: REPORT %s returned status %d", resolved, resp.StatusCode)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("caldav: decoding REPORT response: %w", err)
	}

	var objects []RemoteObject
	for _, res := range ms.Responses {
		props := collectProps(res)
		if props.calendarData == "" {
			c.logger.Debug("caldav: REPORT row without calendar-data skipped",
				"href", res.Href)
			continue
		}
		etag, _ := props.etag.Get()
		objects = append(objects, RemoteObject{
			URL:  c.resolve(res.Href),
			ETag: etag,
			Data: props.calendarData,
		})
	}

	c.logger.Debug("caldav: REPORT complete",
		"url", resolved,
		"objects", len(objects))
	return objects, nil
}
