package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceURL(t *testing.T) {
	f := NewFetcher(nil, "", "")
	assert.Equal(t, "https://organic.ams.usda.gov/Integrity/CP/OPP?nopid=8150000123", f.SourceURL("8150000123"))
	assert.Equal(t, DefaultBaseURL+"?nopid=a+b%26c", f.SourceURL("a b&c"))

	custom := NewFetcher(nil, "http://mirror.test/op?lang=en", "id")
	assert.Equal(t, "http://mirror.test/op?lang=en&id=42", custom.SourceURL("42"))
}

func registryServer(t *testing.T) *httptest.Server {
	t.Helper()
	page, err := os.ReadFile("testdata/record.html")
	require.NoError(t, err)
	empty, err := os.ReadFile("testdata/empty.html")
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected User-Agent header")
		}
		switch r.URL.Query().Get("nopid") {
		case "8150000123":
			w.Header().Set("Content-Type", "text/html")
			w.Write(page)
		case "0000000000":
			w.Write(empty)
		case "404":
			http.NotFound(w, r)
		default:
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}
	}))
}

func TestFetchRecordOverHTTP(t *testing.T) {
	server := registryServer(t)
	defer server.Close()

	f := NewFetcher(NewHTTPSource("", 5*time.Second), server.URL, "nopid")

	record, err := f.FetchRecord(context.Background(), "8150000123")
	require.NoError(t, err)
	assert.Equal(t, "Sunrise Spice Co.", record.OperationName)
	assert.Len(t, record.Scopes, 4)

	tests := []struct {
		id   string
		kind error
	}{
		{"0000000000", ErrRecordNotFound},
		{"404", ErrRecordNotFound},
		{"9999999999", ErrRegistryUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := f.FetchRecord(context.Background(), tt.id)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.id, fe.RegistryID)
		})
	}
}

func TestFetchRecordTransportError(t *testing.T) {
	server := registryServer(t)
	server.Close()

	f := NewFetcher(NewHTTPSource("", time.Second), server.URL, "nopid")
	_, err := f.FetchRecord(context.Background(), "8150000123")
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.NotErrorIs(t, err, ErrRecordNotFound)
}

// blockingSource counts loads and holds them until release is closed.
type blockingSource struct {
	doc     *goquery.Document
	loads   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) Document(ctx context.Context, url string) (*goquery.Document, error) {
	s.loads.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return s.doc, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, ctx.Err())
	}
}

func TestFetchRecordSharesConcurrentLoads(t *testing.T) {
	src := &blockingSource{
		doc:     loadFixture(t, "record.html"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := NewFetcher(src, "", "")

	const callers = 4
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.FetchRecord(context.Background(), "8150000123")
		errs <- err
	}()
	<-src.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.FetchRecord(context.Background(), "8150000123")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.loads.Load())
}

func TestFetchErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := unavailable("123", "failed to load registry page", cause)

	assert.Equal(t, "registry id 123 [registry unavailable]: failed to load registry page: dial tcp: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.NotErrorIs(t, err, ErrRecordNotFound)

	nf := notFound("456", "no record")
	assert.Equal(t, "registry id 456 [record not found]: no record", nf.Error())
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "ok", Category(nil))
	assert.Equal(t, "not_found", Category(notFound("1", "x")))
	assert.Equal(t, "unavailable", Category(unavailable("1", "x", nil)))
	assert.Equal(t, "internal", Category(errors.New("boom")))
}
