package caldav

import (
	"context"
	"fmt"
	"net/http"
)

// DeleteCalendarObject removes one object, conditionally when etag is known.
// A 404 counts as success: the object is already gone upstream.
func (c *client) DeleteCalendarObject(ctx context.Context, objectURL string, etag string) error {
	resolved := c.resolve(objectURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resolved, nil)
	if err != nil {
		return fmt.Errorf("caldav: building DELETE request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("caldav: DELETE %s: %w", resolved, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		c.logger.Debug("caldav: DELETE complete",
			"url", resolved,
			"status", resp.StatusCode)
		return nil
	default:
		return fmt.Errorf("caldav: DELETE %s returned status %d", resolved, resp.StatusCode)
	}
}
