package composer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/composer"
	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

type searchCatalog struct {
	fakeCatalog
	calls     atomic.Int32
	started   chan string
	cancelled chan string
	release   chan struct{}
	block     string
	err       error
}

func (c *searchCatalog) FindByName(ctx context.Context, term string, _ *int64) ([]domain.Product, error) {
	c.calls.Add(1)
	if c.started != nil {
		c.started <- term
	}
	if term == c.block {
		select {
		case <-c.release:
		case <-ctx.Done():
			if c.cancelled != nil {
				c.cancelled <- term
			}
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return []domain.Product{{ID: 1, Name: "Camisa " + term}}, nil
}

func TestLookupDebouncesRapidInput(t *testing.T) {
	catalog := &searchCatalog{}
	lookup := composer.NewLookup(catalog, composer.WithQuietPeriod(80*time.Millisecond))

	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = lookup.Search(context.Background(), "ca", nil)
	}()
	time.Sleep(20 * time.Millisecond)

	products, err := lookup.Search(context.Background(), "cam", nil)
	wg.Wait()

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Camisa cam", products[0].Name)
	assert.ErrorIs(t, firstErr, composer.ErrSuperseded)
	assert.Equal(t, int32(1), catalog.calls.Load(), "only the last input reaches the catalog")
}

func TestLookupDiscardsSupersededInFlightResult(t *testing.T) {
	catalog := &searchCatalog{
		started:   make(chan string, 2),
		cancelled: make(chan string, 1),
		release:   make(chan struct{}),
		block:     "slow",
	}
	lookup := composer.NewLookup(catalog, composer.WithQuietPeriod(0))

	result := make(chan error, 1)
	go func() {
		_, err := lookup.Search(context.Background(), "slow", nil)
		result <- err
	}()
	require.Equal(t, "slow", <-catalog.started)

	products, err := lookup.Search(context.Background(), "fast", nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Camisa fast", products[0].Name)

	select {
	case term := <-catalog.cancelled:
		assert.Equal(t, "slow", term)
	case <-time.After(time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	select {
	case err := <-result:
		assert.ErrorIs(t, err, composer.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded lookup did not return")
	}
}

func TestLookupSharedFetchesCollapseIdenticalRequests(t *testing.T) {
	catalog := &searchCatalog{
		started: make(chan string, 4),
		release: make(chan struct{}),
		block:   "camisa",
	}
	fetches := composer.NewFetchGroup()
	a := composer.NewLookup(catalog, composer.WithQuietPeriod(0), composer.WithSharedFetches(fetches))
	b := composer.NewLookup(catalog, composer.WithQuietPeriod(0), composer.WithSharedFetches(fetches))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, l := range []*composer.Lookup{a, b} {
		wg.Add(1)
		go func(i int, l *composer.Lookup) {
			defer wg.Done()
			_, errs[i] = l.Search(context.Background(), "camisa", nil)
		}(i, l)
	}
	<-catalog.started
	time.Sleep(20 * time.Millisecond)
	close(catalog.release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), catalog.calls.Load())
	assert.Zero(t, composer.InflightFetches(fetches))
}

func TestLookupSharedFetchCancelledWhenLastWaiterLeaves(t *testing.T) {
	catalog := &searchCatalog{
		started:   make(chan string, 4),
		cancelled: make(chan string, 1),
		release:   make(chan struct{}),
		block:     "slow",
	}
	fetches := composer.NewFetchGroup()
	a := composer.NewLookup(catalog, composer.WithQuietPeriod(0), composer.WithSharedFetches(fetches))
	b := composer.NewLookup(catalog, composer.WithQuietPeriod(0), composer.WithSharedFetches(fetches))

	results := make(chan error, 2)
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()
	go func() {
		_, err := a.Search(context.Background(), "slow", nil)
		results <- err
	}()
	require.Equal(t, "slow", <-catalog.started)
	go func() {
		_, err := b.Search(ctxB, "slow", nil)
		results <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// Первый ожидающий вытеснен, но запрос ещё нужен второму.
	_, err := a.Search(context.Background(), "fast", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, <-results, composer.ErrSuperseded)
	select {
	case <-catalog.cancelled:
		t.Fatal("shared fetch cancelled while another search waits for it")
	case <-time.After(50 * time.Millisecond):
	}

	cancelB()
	select {
	case term := <-catalog.cancelled:
		assert.Equal(t, "slow", term)
	case <-time.After(time.Second):
		t.Fatal("shared fetch was not cancelled after the last waiter left")
	}
	assert.ErrorIs(t, <-results, context.Canceled)
	assert.Zero(t, composer.InflightFetches(fetches))

	// Забытый запрос не мешает новому поиску по тому же ключу.
	close(catalog.release)
	products, err := b.Search(context.Background(), "slow", nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestLookupWrapsCatalogFailure(t *testing.T) {
	catalog := &searchCatalog{err: errors.New("timeout")}
	lookup := composer.NewLookup(catalog, composer.WithQuietPeriod(0))

	_, err := lookup.Search(context.Background(), "camisa", nil)
	assert.True(t, domain.IsTransport(err))
}

func TestLookupEmptyTermSkipsCatalog(t *testing.T) {
	catalog := &searchCatalog{}
	lookup := composer.NewLookup(catalog)

	products, err := lookup.Search(context.Background(), "   ", nil)
	assert.NoError(t, err)
	assert.Empty(t, products)
	assert.Zero(t, catalog.calls.Load())
}

func TestLookupCallerCancellation(t *testing.T) {
	lookup := composer.NewLookup(&searchCatalog{}, composer.WithQuietPeriod(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lookup.Search(ctx, "camisa", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
