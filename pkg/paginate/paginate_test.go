package paginate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/Sternrassler/kalshi-ingest/pkg/catalog"
	"github.com/Sternrassler/kalshi-ingest/pkg/client"
)

// fakeFetcher serves scripted cursor pages keyed by the cursor parameter.
// The first page is keyed by the empty cursor.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]client.Document
	calls  map[string]int
	failOn map[string]int // cursor -> call number that fails
	params []url.Values
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:  make(map[string]client.Document),
		calls:  make(map[string]int),
		failOn: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, params url.Values) (client.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cursor := params.Get("cursor")
	f.calls[cursor]++
	f.params = append(f.params, params)

	if n, ok := f.failOn[cursor]; ok && f.calls[cursor] == n {
		return nil, errors.New("simulated fetch failure")
	}

	doc, ok := f.pages[cursor]
	if !ok {
		return client.Document{}, nil
	}
	return doc, nil
}

// makeDoc builds a page document with n items and an optional next cursor.
func makeDoc(field string, start, n int, next string) client.Document {
	items := make([]any, n)
	for i := 0; i < n; i++ {
		items[i] = map[string]any{
			"ticker": fmt.Sprintf("ITEM-%05d", start+i),
			"status": "open",
		}
	}
	doc := client.Document{field: items}
	if next != "" {
		doc["cursor"] = next
	}
	return doc
}

func marketsDescriptor() catalog.Descriptor {
	return catalog.Descriptor{
		Path:         "/markets",
		Capabilities: []string{catalog.CapabilityPagination, "Returns 'markets' field"},
		Method:       "GET",
	}
}

func TestFetchAll_MultiPage(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = makeDoc("markets", 0, 5, "c1")
	f.pages["c1"] = makeDoc("markets", 5, 5, "c2")
	f.pages["c2"] = makeDoc("markets", 10, 2, "")

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), marketsDescriptor())

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Pages != 3 {
		t.Errorf("pages = %d, want 3", result.Pages)
	}
	if len(result.Records) != 12 {
		t.Errorf("records = %d, want 12", len(result.Records))
	}
	if result.Duplicates != 0 {
		t.Errorf("duplicates = %d, want 0", result.Duplicates)
	}
}

func TestFetchAll_DuplicatesAcrossPages(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = makeDoc("markets", 0, 5, "c1")
	// Overlapping window: items 3 and 4 repeat on page 2.
	f.pages["c1"] = makeDoc("markets", 3, 5, "")

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), marketsDescriptor())

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Records) != 8 {
		t.Errorf("records = %d, want 8", len(result.Records))
	}
	if result.Duplicates != 2 {
		t.Errorf("duplicates = %d, want 2", result.Duplicates)
	}
}

func TestFetchAll_EmptyFirstPage(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = client.Document{"markets": []any{}}

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), marketsDescriptor())

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Pages != 1 {
		t.Errorf("pages = %d, want 1", result.Pages)
	}
	if len(result.Records) != 0 {
		t.Errorf("records = %d, want 0", len(result.Records))
	}
}

func TestFetchAll_PartialOnFailure(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = makeDoc("markets", 0, 5, "c1")
	f.failOn["c1"] = 1

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), marketsDescriptor())

	if result.Err == nil {
		t.Fatal("expected error, got nil")
	}
	// The failed second page counts as attempted.
	if result.Pages != 2 {
		t.Errorf("pages = %d, want 2", result.Pages)
	}
	if len(result.Records) != 5 {
		t.Errorf("partial records = %d, want 5", len(result.Records))
	}
}

func TestFetchAll_FirstPageFailureCountsOnePage(t *testing.T) {
	f := newFakeFetcher()
	f.failOn[""] = 1

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), marketsDescriptor())

	if result.Err == nil {
		t.Fatal("expected error, got nil")
	}
	if result.Pages != 1 {
		t.Errorf("pages = %d, want 1", result.Pages)
	}
	if len(result.Records) != 0 {
		t.Errorf("records = %d, want 0", len(result.Records))
	}
}

func TestFetchAll_EmptyPageWithCursorStops(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = makeDoc("markets", 0, 5, "c1")
	// Empty collection but a cursor still present: pagination must stop
	// without following it.
	f.pages["c1"] = client.Document{"markets": []any{}, "cursor": "c2"}
	f.pages["c2"] = makeDoc("markets", 5, 5, "")

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), marketsDescriptor())

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Pages != 2 {
		t.Errorf("pages = %d, want 2", result.Pages)
	}
	if len(result.Records) != 5 {
		t.Errorf("records = %d, want 5", len(result.Records))
	}
	if f.calls["c2"] != 0 {
		t.Errorf("cursor after empty page fetched %d times, want 0", f.calls["c2"])
	}
}

func TestFetchAll_NonPaginatedSingleFetch(t *testing.T) {
	f := newFakeFetcher()
	// Cursor present but the descriptor does not advertise pagination.
	f.pages[""] = makeDoc("series", 0, 3, "c1")

	desc := catalog.Descriptor{
		Path:         "/series",
		Capabilities: []string{"Returns 'series' field"},
		Method:       "GET",
	}

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), desc)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Pages != 1 {
		t.Errorf("pages = %d, want 1", result.Pages)
	}
	if f.calls[""] != 1 {
		t.Errorf("first page fetched %d times, want 1", f.calls[""])
	}
}

func TestFetchAll_ProbesCollectionField(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = makeDoc("events", 0, 4, "")

	desc := catalog.Descriptor{
		Path:         "/events",
		Capabilities: []string{catalog.CapabilityPagination},
		Method:       "GET",
	}

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), desc)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Records) != 4 {
		t.Errorf("records = %d, want 4", len(result.Records))
	}
}

func TestFetchAll_NonCollectionPayloadKeptAsSingleRecord(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = client.Document{"exchange_active": true, "trading_active": true}

	desc := catalog.Descriptor{
		Path:         "/exchange/status",
		Capabilities: []string{},
		Method:       "GET",
	}

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), desc)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Pages != 1 {
		t.Errorf("pages = %d, want 1", result.Pages)
	}
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	if result.Records[0]["exchange_active"] != true {
		t.Errorf("unexpected record: %v", result.Records[0])
	}
}

func TestFetchAll_EmptyDocument(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = client.Document{}

	desc := catalog.Descriptor{
		Path:         "/exchange/status",
		Capabilities: []string{},
		Method:       "GET",
	}

	p := NewPaginator(f)
	result := p.FetchAll(context.Background(), desc)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Records) != 0 {
		t.Errorf("records = %d, want 0", len(result.Records))
	}
}

func TestFetchAll_SendsEndpointLimit(t *testing.T) {
	f := newFakeFetcher()
	f.pages[""] = makeDoc("events", 0, 1, "")

	desc := catalog.Descriptor{
		Path:         "/events",
		Capabilities: []string{catalog.CapabilityPagination, "Returns 'events' field"},
		Method:       "GET",
	}

	p := NewPaginator(f)
	p.FetchAll(context.Background(), desc)

	if got := f.params[0].Get("limit"); got != "100" {
		t.Errorf("limit param = %q, want 100", got)
	}
	if got := f.params[0].Get("cursor"); got != "" {
		t.Errorf("first page cursor param = %q, want empty", got)
	}
}
