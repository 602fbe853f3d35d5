package caldav

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// PutCalendarObject uploads one object. A non-empty etag makes the PUT
// conditional with If-Match, so a concurrent remote edit turns into a 412
// instead of a lost update. An empty etag uploads unconditionally, which is
// how new objects are created under a collection URL.
//
// Returns the object's new etag. Servers that answer without an ETag header
// get asked again with a PROPFIND.
func (c *client) PutCalendarObject(ctx context.Context, objectURL string, etag string, data []byte) (string, error) {
	resolved := c.resolve(objectURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resolved, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("caldav: building PUT request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("caldav: PUT %s: %w", resolved, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		return "", fmt.Errorf("caldav: PUT %s returned status %d", resolved, resp.StatusCode)
	}

	newEtag := resp.Header.Get("ETag")
	if newEtag == "" {
		newEtag, err = c.fetchETag(ctx, resolved)
		if err != nil {
			return "", fmt.Errorf("caldav: etag after PUT %s: %w", resolved, err)
		}
	}

	c.logger.Debug("caldav: PUT complete",
		"url", resolved,
		"etag", newEtag)
	return newEtag, nil
}
