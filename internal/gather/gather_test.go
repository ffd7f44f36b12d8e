// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/cache"
	"github.com/pdiddy/evidence-engine/internal/sources"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// fakeAdapter counts calls and answers after an optional delay.
type fakeAdapter struct {
	name    types.SourceName
	results []types.Candidate
	err     error
	delay   time.Duration
	block   chan struct{}
	panics  bool

	calls    atomic.Int32
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (f *fakeAdapter) Name() types.SourceName { return f.name }

func (f *fakeAdapter) Search(ctx context.Context, _ string, _ int) ([]types.Candidate, error) {
	f.calls.Add(1)
	if f.inFlight != nil {
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if f.panics {
		panic("malformed payload")
	}
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func candidates(source types.SourceName, ids ...string) []types.Candidate {
	out := make([]types.Candidate, len(ids))
	for i, id := range ids {
		out[i] = types.Candidate{SourceID: id, Title: "Trial " + id, Source: source, Kind: types.KindTrial}
	}
	return out
}

func memoryCache(t *testing.T) *cache.Cache {
	t.Helper()
	b, err := cache.NewMemoryBackend(0)
	require.NoError(t, err)
	c := cache.New(b)
	t.Cleanup(func() { c.Close() })
	return c
}

func newCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	co, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(co.Release)
	return co
}

func TestGatherCollectsEverySource(t *testing.T) {
	pubmed := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1", "2")}
	openalex := &fakeAdapter{name: types.SourceOpenAlex, results: candidates(types.SourceOpenAlex, "W1")}
	co := newCoordinator(t)

	set := co.Gather(context.Background(), "dapt", []sources.Adapter{pubmed, openalex})

	assert.Equal(t, []types.SourceName{types.SourcePubMed, types.SourceOpenAlex}, set.Order)
	assert.Equal(t, 3, set.Total())
	assert.Len(t, set.Candidates(types.SourcePubMed), 2)
	assert.Equal(t, types.StatusOK, set.Results[types.SourceOpenAlex].Status)
	assert.Zero(t, set.CacheHits())
}

func TestGatherNoAdapters(t *testing.T) {
	set := newCoordinator(t).Gather(context.Background(), "q", nil)
	assert.Empty(t, set.Results)
	assert.Zero(t, set.Total())
}

func TestSecondIdenticalQueryMakesNoExternalCalls(t *testing.T) {
	pubmed := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1", "2")}
	trials := &fakeAdapter{name: types.SourceClinicalTrials, results: candidates(types.SourceClinicalTrials, "NCT1")}
	adapters := []sources.Adapter{pubmed, trials}
	co := newCoordinator(t, WithCache(memoryCache(t)))

	first := co.Gather(context.Background(), "DAPT duration after PCI", adapters)
	require.Equal(t, 3, first.Total())

	second := co.Gather(context.Background(), "  dapt duration after pci ", adapters)
	assert.Equal(t, int32(1), pubmed.calls.Load())
	assert.Equal(t, int32(1), trials.calls.Load())
	assert.Equal(t, 2, second.CacheHits())
	assert.Equal(t, types.StatusCached, second.Results[types.SourcePubMed].Status)
	assert.Equal(t, first.Candidates(types.SourcePubMed), second.Candidates(types.SourcePubMed))
}

func TestFailedSourceIsNotCached(t *testing.T) {
	failing := &fakeAdapter{name: types.SourceEuropePMC, err: errors.New("HTTP 500")}
	co := newCoordinator(t, WithCache(memoryCache(t)))

	co.Gather(context.Background(), "q", []sources.Adapter{failing})
	co.Gather(context.Background(), "q", []sources.Adapter{failing})
	assert.Equal(t, int32(2), failing.calls.Load())
}

func TestErrorIsContained(t *testing.T) {
	ok := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1")}
	bad := &fakeAdapter{name: types.SourceSemanticScholar, err: errors.New("HTTP 429")}
	co := newCoordinator(t)

	set := co.Gather(context.Background(), "q", []sources.Adapter{ok, bad})

	assert.Equal(t, types.StatusOK, set.Results[types.SourcePubMed].Status)
	failed := set.Results[types.SourceSemanticScholar]
	assert.Equal(t, types.StatusError, failed.Status)
	assert.EqualError(t, failed.Err, "HTTP 429")
	assert.Empty(t, failed.Candidates)
	assert.Equal(t, 1, set.Total())
}

func TestPanicIsContained(t *testing.T) {
	ok := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1")}
	broken := &fakeAdapter{name: types.SourceDailyMed, panics: true}
	co := newCoordinator(t)

	set := co.Gather(context.Background(), "q", []sources.Adapter{ok, broken})

	assert.Equal(t, types.StatusError, set.Results[types.SourceDailyMed].Status)
	assert.ErrorIs(t, set.Results[types.SourceDailyMed].Err, ErrAdapterPanic)
	assert.Equal(t, 1, set.Total())
}

func TestPerSourceTimeout(t *testing.T) {
	slow := &fakeAdapter{name: types.SourceOpenAlex, delay: time.Second}
	fast := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1")}
	co := newCoordinator(t, WithPerSourceTimeout(20*time.Millisecond), WithGlobalBudget(5*time.Second))

	set := co.Gather(context.Background(), "q", []sources.Adapter{slow, fast})

	assert.Equal(t, types.StatusTimeout, set.Results[types.SourceOpenAlex].Status)
	assert.ErrorIs(t, set.Results[types.SourceOpenAlex].Err, context.DeadlineExceeded)
	assert.Equal(t, types.StatusOK, set.Results[types.SourcePubMed].Status)
}

func TestBudgetAbandonsSlowSources(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := &fakeAdapter{name: types.SourceClinicalTrials, block: release}
	fast := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1")}
	co := newCoordinator(t, WithPerSourceTimeout(time.Minute), WithGlobalBudget(50*time.Millisecond))

	start := time.Now()
	set := co.Gather(context.Background(), "q", []sources.Adapter{stuck, fast})

	assert.Less(t, time.Since(start), time.Second, "gather returns at the budget")
	abandoned := set.Results[types.SourceClinicalTrials]
	assert.Equal(t, types.StatusAbandoned, abandoned.Status)
	assert.ErrorIs(t, abandoned.Err, ErrBudgetExceeded)
	assert.Equal(t, 1, set.Total())
}

func TestAbandonedResultStillReachesCache(t *testing.T) {
	release := make(chan struct{})
	late := &fakeAdapter{name: types.SourceOpenAlex, block: release, results: candidates(types.SourceOpenAlex, "W1")}
	c := memoryCache(t)
	co := newCoordinator(t, WithCache(c), WithPerSourceTimeout(time.Minute), WithGlobalBudget(20*time.Millisecond))

	set := co.Gather(context.Background(), "late query", []sources.Adapter{late})
	require.Equal(t, types.StatusAbandoned, set.Results[types.SourceOpenAlex].Status)

	close(release)
	assert.Eventually(t, func() bool {
		_, ok := c.Get(context.Background(), "late query", types.SourceOpenAlex)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelledContextAbandons(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := &fakeAdapter{name: types.SourcePubMed, block: release}
	co := newCoordinator(t, WithGlobalBudget(0))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	set := co.Gather(ctx, "q", []sources.Adapter{stuck})

	assert.Equal(t, types.StatusAbandoned, set.Results[types.SourcePubMed].Status)
	assert.ErrorIs(t, set.Results[types.SourcePubMed].Err, context.Canceled)
}

func TestMaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	var adapters []sources.Adapter
	for _, name := range []types.SourceName{
		types.SourcePubMed, types.SourceEuropePMC, types.SourceOpenAlex,
		types.SourceSemanticScholar, types.SourceClinicalTrials, types.SourceDailyMed,
	} {
		adapters = append(adapters, &fakeAdapter{
			name:     name,
			results:  candidates(name, string(name)),
			delay:    30 * time.Millisecond,
			inFlight: &inFlight,
			peak:     &peak,
		})
	}
	co := newCoordinator(t, WithMaxConcurrency(2), WithGlobalBudget(0))

	set := co.Gather(context.Background(), "q", adapters)

	assert.Equal(t, 6, set.Total())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, name := range set.Order {
		assert.Equal(t, types.StatusOK, set.Results[name].Status, name)
	}
}

func TestConcurrentGathers(t *testing.T) {
	a := &fakeAdapter{name: types.SourcePubMed, results: candidates(types.SourcePubMed, "1")}
	co := newCoordinator(t, WithCache(memoryCache(t)), WithMaxConcurrency(4))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set := co.Gather(context.Background(), "shared", []sources.Adapter{a})
			assert.Equal(t, 1, set.Total())
		}()
	}
	wg.Wait()
}

func TestDuplicatesWithinSourceAreDropped(t *testing.T) {
	dup := candidates(types.SourcePubMed, "1", "2", "1")
	dup = append(dup, types.Candidate{Title: "no id"}, types.Candidate{Title: "no id either"})
	a := &fakeAdapter{name: types.SourcePubMed, results: dup}

	set := newCoordinator(t).Gather(context.Background(), "q", []sources.Adapter{a})
	assert.Len(t, set.Candidates(types.SourcePubMed), 4)
}

func TestFromConfig(t *testing.T) {
	cfg := types.DefaultPipelineConfig().Gather
	co, err := FromConfig(cfg, nil, nil)
	require.NoError(t, err)
	defer co.Release()

	assert.Equal(t, cfg.PerSourceTimeout, co.perSourceTimeout)
	assert.Equal(t, cfg.GlobalBudget, co.budget)
	assert.Equal(t, cfg.MaxResultsPerSource, co.maxResults)
	require.NotNil(t, co.pool)
	assert.Equal(t, cfg.MaxConcurrency, co.pool.Cap())
}
