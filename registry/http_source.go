package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPSource fetches registry pages with a plain GET. It only sees the server
// rendered markup, so it suits registry mirrors and fixtures rather than the
// live script-populated page.
type HTTPSource struct {
	userAgent  string
	httpClient *http.Client
}

func NewHTTPSource(userAgent string, timeout time.Duration) *HTTPSource {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Document implements DocumentSource.
func (s *HTTPSource) Document(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrRegistryUnavailable, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: registry returned status %d", ErrRecordNotFound, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: registry returned status %d", ErrRegistryUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse page: %v", ErrRegistryUnavailable, err)
	}
	return doc, nil
}
