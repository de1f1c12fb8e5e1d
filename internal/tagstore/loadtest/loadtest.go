// Package loadtest simulates several extension instances editing one synced
// storage area at the same time.
//
// Every instance is an independent store over the shared transport. Stores
// do read-modify-write of whole project records without any cross-instance
// lock, so concurrent edits of the same project can overwrite each other.
// The report counts those lost updates and checks that every cache agrees
// with the durable state once the dust settles.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

// Config describes one simulation.
type Config struct {
	Instances      int   // concurrent stores
	OpsPerInstance int   // AddTag calls per store
	Projects       int   // size of the shared project pool
	Tags           int   // size of the tag vocabulary
	Seed           int64 // base seed; instance i uses Seed+i
}

// DefaultConfig returns a small but contended simulation.
func DefaultConfig() Config {
	return Config{
		Instances:      8,
		OpsPerInstance: 25,
		Projects:       5,
		Tags:           20,
		Seed:           42,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Instances < 1 {
		return fmt.Errorf("instances must be at least 1")
	}
	if c.OpsPerInstance < 1 {
		return fmt.Errorf("ops per instance must be at least 1")
	}
	if c.Projects < 1 || c.Tags < 1 {
		return fmt.Errorf("projects and tags must be at least 1")
	}
	return nil
}

// Update is one acknowledged tag assignment.
type Update struct {
	Project string
	Tag     string
}

// LatencyStats captures per-operation latency.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Result is the report of a simulation.
type Result struct {
	Config    Config
	Latency   *LatencyStats
	Succeeded int // AddTag returned nil
	Duplicate int // project already had the tag
	Failed    int // any other error
	Errors    []string

	// Acknowledged holds each distinct assignment that some instance was
	// told succeeded.
	Acknowledged int
	LostUpdates  []Update

	// ConvergedLive reports whether caches matched the durable state from
	// change notifications alone; Converged is checked after a refresh.
	ConvergedLive bool
	Converged     bool

	Duration time.Duration
}

// LostRate is the share of acknowledged assignments missing at the end.
func (r *Result) LostRate() float64 {
	if r.Acknowledged == 0 {
		return 0
	}
	return float64(len(r.LostUpdates)) / float64(r.Acknowledged)
}

type instanceResult struct {
	durations []time.Duration
	acked     []Update
	ok, dup   int
	errs      []error
}

// Run executes the simulation against t. t should start empty; existing
// data is kept and counted toward the final state.
func Run(ctx context.Context, t kv.Transport, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stores := make([]*store.Store, cfg.Instances)
	for i := range stores {
		sc := store.DefaultConfig()
		sc.Logger = log.New(io.Discard, fmt.Sprintf("[instance %d] ", i), 0)
		stores[i] = store.NewWithConfig(t, sc)
		if err := stores[i].Initialize(ctx); err != nil {
			closeAll(stores[:i+1])
			return nil, fmt.Errorf("failed to initialize instance %d: %w", i, err)
		}
	}
	defer closeAll(stores)

	results := make([]instanceResult, cfg.Instances)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range stores {
		g.Go(func() error {
			results[i] = runInstance(gctx, s, cfg, cfg.Seed+int64(i))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation interrupted: %w", err)
	}

	res := &Result{Config: cfg, Duration: time.Since(start)}
	var durations []time.Duration
	acked := make(map[Update]bool)
	for _, r := range results {
		durations = append(durations, r.durations...)
		res.Succeeded += r.ok
		res.Duplicate += r.dup
		res.Failed += len(r.errs)
		for _, err := range r.errs {
			res.Errors = append(res.Errors, err.Error())
		}
		for _, u := range r.acked {
			acked[u] = true
		}
	}
	res.Latency = computeLatencyStats(durations)
	res.Acknowledged = len(acked)

	durable, err := durableState(ctx, t)
	if err != nil {
		return nil, err
	}
	for u := range acked {
		if !slices.Contains(durable[u.Project], u.Tag) {
			res.LostUpdates = append(res.LostUpdates, u)
		}
	}
	sort.Slice(res.LostUpdates, func(i, j int) bool {
		a, b := res.LostUpdates[i], res.LostUpdates[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		return a.Tag < b.Tag
	})

	res.ConvergedLive = converged(stores, durable)
	for _, s := range stores {
		if err := s.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh: %w", err)
		}
	}
	res.Converged = converged(stores, durable)
	return res, nil
}

func runInstance(ctx context.Context, s *store.Store, cfg Config, seed int64) instanceResult {
	rng := rand.New(rand.NewSource(seed))
	out := instanceResult{durations: make([]time.Duration, 0, cfg.OpsPerInstance)}

	for j := 0; j < cfg.OpsPerInstance; j++ {
		if ctx.Err() != nil {
			return out
		}
		u := Update{
			Project: ProjectID(rng.Intn(cfg.Projects)),
			Tag:     TagName(rng.Intn(cfg.Tags)),
		}

		opStart := time.Now()
		err := s.AddTag(ctx, u.Project, u.Tag)
		out.durations = append(out.durations, time.Since(opStart))

		switch {
		case err == nil:
			out.ok++
			out.acked = append(out.acked, u)
		case errors.Is(err, store.ErrAlreadyExists):
			out.dup++
		default:
			out.errs = append(out.errs, fmt.Errorf("add %q to %s: %w", u.Tag, u.Project, err))
		}
	}
	return out
}

// ProjectID names the i-th simulated project.
func ProjectID(i int) string {
	return fmt.Sprintf("load-%03d", i)
}

// TagName names the i-th tag of the vocabulary. Tags are spread over a few
// roots so writes touch several metadata shards.
func TagName(i int) string {
	roots := []string{"Alpha", "Beta", "Gamma", "Delta"}
	return fmt.Sprintf("%s/T%02d", roots[i%len(roots)], i)
}

func durableState(ctx context.Context, t kv.Transport) (map[string][]string, error) {
	items, err := t.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	out := make(map[string][]string)
	for k, v := range items {
		kind, id := schema.Classify(k)
		if kind != schema.KindProject {
			continue
		}
		p, err := schema.DecodeProject(v)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", id, err)
		}
		out[id] = p.Tags
	}
	return out, nil
}

func converged(stores []*store.Store, durable map[string][]string) bool {
	for _, s := range stores {
		cached := s.AllProjectTags()
		if len(cached) != len(durable) {
			return false
		}
		for id, tags := range durable {
			if !slices.Equal(cached[id], tags) {
				return false
			}
		}
	}
	return true
}

func closeAll(stores []*store.Store) {
	for _, s := range stores {
		if s != nil {
			_ = s.Close()
		}
	}
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(durations),
	}
}

// Print writes a human-readable report.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Instances:      %d x %d ops (%d projects, %d tags)\n",
		r.Config.Instances, r.Config.OpsPerInstance, r.Config.Projects, r.Config.Tags)
	fmt.Fprintf(w, "Duration:       %v\n", r.Duration)
	fmt.Fprintf(w, "Succeeded:      %d\n", r.Succeeded)
	fmt.Fprintf(w, "Duplicates:     %d\n", r.Duplicate)
	fmt.Fprintf(w, "Failed:         %d\n", r.Failed)
	fmt.Fprintf(w, "Acknowledged:   %d\n", r.Acknowledged)
	fmt.Fprintf(w, "Lost updates:   %d (%.1f%%)\n", len(r.LostUpdates), r.LostRate()*100)
	fmt.Fprintf(w, "Converged live: %v\n", r.ConvergedLive)
	fmt.Fprintf(w, "Converged:      %v\n", r.Converged)
	if l := r.Latency; l != nil && l.Count > 0 {
		fmt.Fprintf(w, "Latency:\n")
		fmt.Fprintf(w, "  Min:          %v\n", l.Min)
		fmt.Fprintf(w, "  P50 (Median): %v\n", l.P50)
		fmt.Fprintf(w, "  Mean:         %v\n", l.Mean)
		fmt.Fprintf(w, "  P95:          %v\n", l.P95)
		fmt.Fprintf(w, "  P99:          %v\n", l.P99)
		fmt.Fprintf(w, "  Max:          %v\n", l.Max)
	}
}
