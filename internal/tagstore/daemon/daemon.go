// Package daemon keeps a Store in step with writes made by other processes.
//
// The daemon:
// 1. Refreshes the store from the database on start
// 2. Watches the database file and its WAL for changes
// 3. Polls the database for changed keys after a debounce interval
// 4. Periodically refreshes the whole store as a safety net
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

// Poller reports writes made behind this process's back to the transport's
// watchers. *db.DB implements it.
type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// RefreshInterval is how often to reload the full snapshot
	RefreshInterval time.Duration

	// DebounceInterval is how long to wait before polling after a file change
	// This batches rapid updates together
	DebounceInterval time.Duration

	// OnSync is called after every poll or refresh that completed
	OnSync func(SyncResult)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval:  5 * time.Second,
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// SyncKind distinguishes incremental polls from full refreshes.
type SyncKind string

const (
	SyncPoll    SyncKind = "poll"
	SyncRefresh SyncKind = "refresh"
)

// SyncResult describes one completed synchronization.
type SyncResult struct {
	Kind     SyncKind
	Changed  int // keys changed; always 0 for a refresh
	Duration time.Duration
	At       time.Time
}

// Stats are cumulative daemon counters.
type Stats struct {
	Polls       int
	Refreshes   int
	KeysChanged int
	Errors      int
	FileEvents  int
	LastSync    time.Time
}

// Daemon orchestrates file watching and store synchronization.
type Daemon struct {
	store  *store.Store
	poller Poller
	dbPath string
	config *Config

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - s: the store to keep current; it must be built on the same transport
//     as poller
//   - poller: the database transport
//   - dbPath: the database file the transport writes to
//
// Use Start() to begin watching and syncing.
func New(s *store.Store, poller Poller, dbPath string) (*Daemon, error) {
	return NewWithConfig(s, poller, dbPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(s *store.Store, poller Poller, dbPath string, config *Config) (*Daemon, error) {
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if poller == nil {
		return nil, fmt.Errorf("poller cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:       s,
		poller:      poller,
		dbPath:      dbPath,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform a full refresh of the store
// 2. Start watching the database files
// 3. Poll for changed keys with debouncing
// 4. Periodically refresh the store
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.PerformFullSync(); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if err := d.watcher.Start(d.dbPath); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s", d.dbPath)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.refreshPeriodically()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// PerformFullSync reloads the full snapshot into the store.
//
// It's called on startup and periodically, and can be triggered manually.
func (d *Daemon) PerformFullSync() error {
	start := time.Now()
	if err := d.store.Refresh(d.ctx); err != nil {
		d.recordError()
		return err
	}
	// Advance the poll baseline. Keys the refresh loaded apply idempotently.
	if _, err := d.poller.Poll(d.ctx); err != nil {
		d.config.Logger.Printf("Warning: poll after refresh failed: %v", err)
	}
	d.record(SyncResult{Kind: SyncRefresh, Duration: time.Since(start), At: time.Now()})
	return nil
}

// PollNow polls the database immediately and returns the number of changed
// keys.
func (d *Daemon) PollNow() (int, error) {
	start := time.Now()
	n, err := d.poller.Poll(d.ctx)
	if err != nil {
		d.recordError()
		return 0, err
	}
	d.record(SyncResult{Kind: SyncPoll, Changed: n, Duration: time.Since(start), At: time.Now()})
	return n, nil
}

// Stats returns a snapshot of the daemon counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Daemon) record(res SyncResult) {
	d.statsMu.Lock()
	switch res.Kind {
	case SyncPoll:
		d.stats.Polls++
		d.stats.KeysChanged += res.Changed
	case SyncRefresh:
		d.stats.Refreshes++
	}
	d.stats.LastSync = res.At
	d.statsMu.Unlock()

	if d.config.OnSync != nil {
		d.config.OnSync(res)
	}
}

func (d *Daemon) recordError() {
	d.statsMu.Lock()
	d.stats.Errors++
	d.statsMu.Unlock()
}

// watchFileEvents monitors database file events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.statsMu.Lock()
			d.stats.FileEvents++
			d.statsMu.Unlock()
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a file change for debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue polls once queued changes have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges polls when every queued change is older than the
// debounce interval. A burst of commits therefore costs one poll.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	if len(d.changeQueue) == 0 {
		d.changeQueueMu.Unlock()
		return
	}
	now := time.Now()
	for _, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			d.changeQueueMu.Unlock()
			return
		}
	}
	clear(d.changeQueue)
	d.changeQueueMu.Unlock()

	n, err := d.PollNow()
	if err != nil {
		d.config.Logger.Printf("Error polling database: %v", err)
		return
	}
	if n > 0 {
		d.config.Logger.Printf("Applied %d changed keys", n)
	}
}

// refreshPeriodically reloads the full snapshot on a fixed interval.
func (d *Daemon) refreshPeriodically() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.PerformFullSync(); err != nil {
				d.config.Logger.Printf("Error refreshing store: %v", err)
			}
		}
	}
}
