package store

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/migrate"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/view"
)

// NameSource returns the host-provided display name of a project, or "".
type NameSource func(projectID string) string

// Config holds configuration for a Store.
type Config struct {
	// Logger for store activity
	Logger *log.Logger

	// NameSource supplies display names for newly tracked projects
	NameSource NameSource

	// Now returns the current time; tests pin it
	Now func() time.Time
}

// DefaultConfig returns a config that discards logs.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(io.Discard, "[store] ", log.LstdFlags),
		Now:    time.Now,
	}
}

// Preferences are persisted view settings.
type Preferences struct {
	ExpandedTags   []string
	DropdownHeight int
}

// Store is the cache and mutation engine over one transport.
type Store struct {
	transport kv.Transport
	config    *Config
	migrator  *migrate.Migrator
	selection *view.Selection

	// opMu serializes mutations issued through this Store. It is never held
	// by the change-notification path.
	opMu sync.Mutex

	mu       sync.RWMutex
	ready    bool
	allTags  []string
	tagMeta  schema.TagMetaMap
	projects map[string]*schema.Project
	prefs    Preferences
	pending  []kv.Changes
	lastMig  *migrate.Result

	initGroup singleflight.Group
	watchOnce sync.Once
	unwatch   func()

	obsMu        sync.Mutex
	observers    map[uint64]Listener
	nextObserver uint64
}

// New creates a Store with the default configuration.
func New(t kv.Transport) *Store {
	return NewWithConfig(t, DefaultConfig())
}

// NewWithConfig creates a Store with a custom configuration.
func NewWithConfig(t kv.Transport, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{
		transport: t,
		config:    config,
		migrator:  migrate.New(t, config.Logger),
		selection: view.NewSelection(),
		allTags:   []string{},
		tagMeta:   make(schema.TagMetaMap),
		projects:  make(map[string]*schema.Project),
		prefs:     Preferences{DropdownHeight: view.DefaultDropdownHeight},
		observers: make(map[uint64]Listener),
	}
}

// Transport returns the underlying transport.
func (s *Store) Transport() kv.Transport { return s.transport }

// Selection returns the active filter selection.
func (s *Store) Selection() *view.Selection { return s.selection }

// Ready reports whether Initialize has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Initialize loads the full snapshot, migrates it and populates the cache.
//
// Concurrent callers share one in-flight load; once ready, further calls
// return immediately. A failed load leaves the store not ready so a later call
// retries.
func (s *Store) Initialize(ctx context.Context) error {
	if s.Ready() {
		return nil
	}
	ch := s.initGroup.DoChan("initialize", func() (any, error) {
		if s.Ready() {
			return nil, nil
		}
		return nil, s.load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureReady returns immediately when the store is ready and otherwise
// waits for or triggers Initialize.
func (s *Store) EnsureReady(ctx context.Context) error {
	return s.Initialize(ctx)
}

// Refresh re-reads the full snapshot and replaces the cache. Migration runs
// again and is a no-op when the store is current. On failure the cache is
// left untouched.
func (s *Store) Refresh(ctx context.Context) error {
	items, err := s.transport.Get(ctx, nil)
	if err != nil {
		s.config.Logger.Printf("Warning: refresh failed: %v", err)
		return fmt.Errorf("failed to refresh store: %w", err)
	}
	items = s.runMigration(ctx, items)

	s.mu.Lock()
	s.populateLocked(items)
	s.ready = true
	s.mu.Unlock()
	s.startWatch()

	s.emit(Event{Source: SourceRefresh, Tags: true, Projects: true, Preferences: true})
	return nil
}

// Close stops applying change notifications.
func (s *Store) Close() error {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	return nil
}

// MigrationResult returns the report of the most recent migration run.
func (s *Store) MigrationResult() *migrate.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMig
}

func (s *Store) load(ctx context.Context) error {
	s.startWatch()

	items, err := s.transport.Get(ctx, nil)
	if err != nil {
		s.config.Logger.Printf("Warning: initial load failed: %v", err)
		return fmt.Errorf("failed to load store: %w", err)
	}
	items = s.runMigration(ctx, items)

	s.mu.Lock()
	s.populateLocked(items)
	// Changes observed while loading may be newer than the snapshot.
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		s.applyLocked(c)
	}
	s.ready = true
	s.mu.Unlock()

	s.config.Logger.Printf("Loaded %d tags and %d projects", len(s.AllTagNames()), len(s.ProjectIDs()))
	return nil
}

func (s *Store) runMigration(ctx context.Context, items kv.Items) kv.Items {
	migrated, res, err := s.migrator.Migrate(ctx, items)
	s.mu.Lock()
	s.lastMig = res
	s.mu.Unlock()
	if err != nil {
		s.config.Logger.Printf("Warning: migration failed, loading unmigrated data: %v", err)
	}
	return migrated
}

func (s *Store) startWatch() {
	s.watchOnce.Do(func() {
		unwatch := s.transport.Watch(s.ApplyChanges)
		s.mu.Lock()
		s.unwatch = unwatch
		s.mu.Unlock()
	})
}

// populateLocked replaces every cached structure from a snapshot.
func (s *Store) populateLocked(items kv.Items) {
	flat, err := schema.DecodeStringList(items[schema.AllTagsKey])
	if err != nil {
		s.config.Logger.Printf("Warning: ignoring unreadable %s: %v", schema.AllTagsKey, err)
		flat = []string{}
	}
	s.allTags = flat

	meta, err := schema.LoadTagMetaFromShards(items)
	if err != nil {
		s.config.Logger.Printf("Warning: %v", err)
	}
	s.tagMeta = meta

	s.projects = make(map[string]*schema.Project)
	s.prefs = Preferences{DropdownHeight: view.DefaultDropdownHeight}
	for key, raw := range items {
		kind, suffix := schema.Classify(key)
		switch kind {
		case schema.KindProject:
			p, err := schema.DecodeProject(raw)
			if err != nil {
				s.config.Logger.Printf("Warning: skipping %s: %v", key, err)
				continue
			}
			if p.ID == "" {
				p.ID = suffix
			}
			s.projects[p.ID] = p
		case schema.KindPreference:
			s.applyPreferenceLocked(key, raw)
		}
	}
}

// snapshotProjects returns clones of every cached project, sorted by ID.
func (s *Store) snapshotProjects() []*schema.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schema.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *schema.Project) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// persist writes projects and, when flat is non-nil, the flat tag list in
// one batch, then updates the cache.
func (s *Store) persist(ctx context.Context, projects []*schema.Project, flat []string) error {
	items := make(kv.Items, len(projects)+1)
	for _, p := range projects {
		raw, err := p.Encode()
		if err != nil {
			return err
		}
		items[schema.ProjectKey(p.ID)] = raw
	}
	if flat != nil {
		raw, err := schema.EncodeStringList(flat)
		if err != nil {
			return err
		}
		items[schema.AllTagsKey] = raw
	}
	if len(items) == 0 {
		return nil
	}

	if err := s.transport.Set(ctx, items); err != nil {
		return fmt.Errorf("failed to persist %d keys: %w", len(items), err)
	}

	s.mu.Lock()
	for _, p := range projects {
		s.projects[p.ID] = p.Clone()
	}
	if flat != nil {
		s.allTags = slices.Clone(flat)
	}
	s.mu.Unlock()
	return nil
}
