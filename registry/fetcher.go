// Package registry fetches certification records from the organic integrity
// registry and extracts them into model.CertificationRecord values.
package registry

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/franklinjsmith-create/SupplyVerify/model"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
)

const (
	DefaultBaseURL = "https://organic.ams.usda.gov/Integrity/CP/OPP"
	DefaultIDParam = "nopid"
)

// Fetcher turns registry IDs into certification records. Concurrent calls for
// the same ID share a single page load.
type Fetcher struct {
	source  DocumentSource
	baseURL string
	idParam string
	group   singleflight.Group
}

func NewFetcher(source DocumentSource, baseURL, idParam string) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if idParam == "" {
		idParam = DefaultIDParam
	}
	return &Fetcher{source: source, baseURL: baseURL, idParam: idParam}
}

// SourceURL returns the registry page URL for id.
func (f *Fetcher) SourceURL(id string) string {
	sep := "?"
	if strings.Contains(f.baseURL, "?") {
		sep = "&"
	}
	return f.baseURL + sep + f.idParam + "=" + url.QueryEscape(id)
}

// FetchRecord loads and extracts the record for id. Failures are *FetchError
// values matching ErrRegistryUnavailable or ErrRecordNotFound. The returned
// record may be shared with concurrent callers and must not be modified.
func (f *Fetcher) FetchRecord(ctx context.Context, id string) (*model.CertificationRecord, error) {
	v, err, shared := f.group.Do(id, func() (any, error) {
		return f.fetch(ctx, id)
	})
	if shared {
		logger.Debug(ctx, "registry fetch shared", "registry_id", id)
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.CertificationRecord), nil
}

func (f *Fetcher) fetch(ctx context.Context, id string) (*model.CertificationRecord, error) {
	pageURL := f.SourceURL(id)
	logger.Debug(ctx, "fetching registry page", "registry_id", id, "url", pageURL)

	doc, err := f.source.Document(ctx, pageURL)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, &FetchError{Kind: ErrRecordNotFound, RegistryID: id, Message: "registry has no page for this id", Underlying: err}
		}
		return nil, unavailable(id, "failed to load registry page", err)
	}

	record, err := Extract(doc)
	if err != nil {
		return nil, notFound(id, "no certification data on registry page, the id may be invalid")
	}
	return record, nil
}
