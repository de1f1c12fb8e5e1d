package daemon_test

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/tagshelf/tagshelf/internal/tagstore/daemon"
	"github.com/tagshelf/tagshelf/internal/tagstore/db"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

// Keep a store in step with other processes writing the same database.
func Example() {
	database, err := db.Open(".tagshelf/store.db")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	s := store.New(database)
	cfg := daemon.DefaultConfig()
	cfg.OnSync = func(res daemon.SyncResult) {
		log.Printf("%s: %d keys in %v", res.Kind, res.Changed, res.Duration)
	}
	d, err := daemon.NewWithConfig(s, database, database.Path(), cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		log.Fatal(err)
	}
}
