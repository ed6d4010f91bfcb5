package registry

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// DocumentSource loads a registry page and returns its parsed DOM. Errors wrap
// ErrRecordNotFound when the registry reports a missing page and
// ErrRegistryUnavailable for everything else.
type DocumentSource interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
