package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tessella/bazaar/internal/market"
	"github.com/tessella/bazaar/internal/publisher"
)

// FakeStoreGateway prefixes every locator the fake store mints.
const FakeStoreGateway = "memory://ipfs/"

// FakeStore is an in-memory content-addressed store. Locators have the
// same shape real pinning produces (gateway prefix + CIDv1 of the
// content), so the identical bytes always pin to the identical locator.
//
// It implements both sides of the content contract: pinning (for the
// listing pipeline) and dereferencing (for the catalog synchronizer).
type FakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// PinFileErr / PinJSONErr / FetchErr inject failures into the
	// matching operation.
	PinFileErr error
	PinJSONErr error
	FetchErr   error
}

// NewFakeStore creates an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{objects: make(map[string][]byte)}
}

// PinFile implements the pinning contract for binaries.
func (s *FakeStore) PinFile(ctx context.Context, name string, r io.Reader) (market.Locator, error) {
	if s.PinFileErr != nil {
		return "", market.NewPublishError("asset", s.PinFileErr)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", market.NewPublishError("asset", err)
	}
	return s.put(data), nil
}

// PinJSON implements the pinning contract for documents.
func (s *FakeStore) PinJSON(ctx context.Context, doc any) (market.Locator, error) {
	if s.PinJSONErr != nil {
		return "", market.NewPublishError("metadata", s.PinJSONErr)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", market.NewPublishError("metadata", err)
	}
	return s.put(data), nil
}

// Fetch dereferences a locator the store minted earlier.
func (s *FakeStore) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	if !strings.HasPrefix(locator, FakeStoreGateway) {
		return nil, fmt.Errorf("locator %q not served by this store", locator)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[locator]
	if !ok {
		return nil, fmt.Errorf("locator %q not found", locator)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len returns the number of distinct pinned objects.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *FakeStore) put(data []byte) market.Locator {
	loc := FakeStoreGateway + publisher.SumCID(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[loc] = data
	return market.Locator(loc)
}
