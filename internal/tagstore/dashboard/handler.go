package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

// Handler subscribes to store events and formats them as dashboard messages.
// It bridges between the store and the WebSocket server.
type Handler struct {
	server *Server
	store  *store.Store
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData

	sub *store.Subscription
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, s *store.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		store:  s,
		logger: logger,
	}
}

// Attach subscribes to the store, greets new clients with current stats and
// serves the tag tree at /tree. Call it before starting the server.
func (h *Handler) Attach() {
	h.UpdateStats()
	h.sub = h.store.Subscribe(h.OnStoreEvent)
	h.server.SetWelcome(h.statsMessage)
	h.server.HandleFunc("/tree", h.handleTree)
}

// Detach stops forwarding store events.
func (h *Handler) Detach() {
	if h.sub != nil {
		h.sub.Unsubscribe()
	}
}

// OnStoreEvent forwards a store event and the refreshed statistics.
func (h *Handler) OnStoreEvent(ev store.Event) {
	h.mu.Lock()
	h.stats.Events++
	h.mu.Unlock()

	if ev.Tags {
		h.send(MessageTypeTagsChanged, ChangeData{
			Source: ev.Source.String(),
			Keys:   ev.Keys,
			Count:  len(h.store.AllTagNames()),
		})
	}
	if ev.Projects {
		h.send(MessageTypeProjectsChanged, ChangeData{
			Source: ev.Source.String(),
			Keys:   ev.Keys,
			Count:  len(h.store.ProjectIDs()),
		})
	}
	if ev.Tags || ev.Projects {
		h.UpdateStats()
	}
}

// OnSyncComplete handles poll and refresh completion events
func (h *Handler) OnSyncComplete(kind string, changed int, duration time.Duration) {
	h.logger.Printf("Sync complete: %s, %d keys in %v", kind, changed, duration)

	h.send(MessageTypeSyncComplete, SyncCompleteData{
		Kind:     kind,
		Changed:  changed,
		Duration: duration,
	})
}

// UpdateStats recomputes statistics from the store and broadcasts them.
func (h *Handler) UpdateStats() {
	projects := h.store.Projects()
	tags := len(h.store.AllTagNames())

	h.mu.Lock()
	h.stats.Tags = tags
	h.stats.Projects = len(projects)
	h.stats.Pinned = 0
	h.stats.Untagged = 0
	for _, p := range projects {
		if p.Pinned {
			h.stats.Pinned++
		}
		if len(p.Tags) == 0 {
			h.stats.Untagged++
		}
	}
	h.mu.Unlock()

	h.server.Broadcast(h.statsMessage())
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}

// handleTree serves the tag tree as JSON
func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.store.TagTree())
}
