package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "[test] ", log.LstdFlags),
	})
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of the wanted type arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := testServer(t)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := testServer(t)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := testServer(t)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clients := []*websocket.Conn{dial(t, ctx, server), dial(t, ctx, server)}
	for _, c := range clients {
		readMessage(t, ctx, c) // welcome
	}

	data, _ := json.Marshal(SyncCompleteData{Kind: "poll", Changed: 2})
	server.Broadcast(Message{Type: MessageTypeSyncComplete, Data: data})

	for i, c := range clients {
		msg := readMessage(t, ctx, c)
		if msg.Type != MessageTypeSyncComplete {
			t.Errorf("client %d: type = %s", i, msg.Type)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("client %d: timestamp not set", i)
		}
		var got SyncCompleteData
		if err := json.Unmarshal(msg.Data, &got); err != nil || got.Changed != 2 {
			t.Errorf("client %d: data = %s (%v)", i, msg.Data, err)
		}
	}
}

func TestHandlerForwardsStoreEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := store.New(kv.NewMemory())
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer s.Close()
	if _, err := s.TogglePin(ctx, "idle"); err != nil {
		t.Fatalf("TogglePin() failed: %v", err)
	}

	server := testServer(t)
	h := NewHandler(server, s, log.New(io.Discard, "", 0))
	h.Attach()
	defer h.Detach()
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	conn := dial(t, ctx, server)
	welcome := readMessage(t, ctx, conn)
	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("welcome data: %v", err)
	}
	if stats.Projects != 1 || stats.Pinned != 1 || stats.Untagged != 1 {
		t.Errorf("welcome stats = %+v", stats)
	}

	if err := s.AddTag(ctx, "p1", "Go"); err != nil {
		t.Fatalf("AddTag() failed: %v", err)
	}

	// The store hears its own writes from the transport first, then emits
	// the local event when the operation completes.
	var change ChangeData
	for change.Source != "local" {
		msg := readUntil(t, ctx, conn, MessageTypeTagsChanged)
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			t.Fatalf("change data: %v", err)
		}
	}
	if change.Count != 1 {
		t.Errorf("tags_changed = %+v", change)
	}
	readUntil(t, ctx, conn, MessageTypeProjectsChanged)

	got := h.GetStats()
	if got.Tags != 1 || got.Projects != 2 || got.Untagged != 1 {
		t.Errorf("stats = %+v", got)
	}
	if got.Events == 0 {
		t.Error("events should be counted")
	}
}

func TestHandlerSyncComplete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := store.New(kv.NewMemory())
	server := testServer(t)
	h := NewHandler(server, s, log.New(io.Discard, "", 0))
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)

	h.OnSyncComplete("refresh", 0, 3*time.Millisecond)
	msg := readUntil(t, ctx, conn, MessageTypeSyncComplete)
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("sync data: %v", err)
	}
	if data.Kind != "refresh" || data.Duration != 3*time.Millisecond {
		t.Errorf("sync_complete = %+v", data)
	}
}

func TestHealthAndTreeEndpoints(t *testing.T) {
	ctx := context.Background()
	s := store.New(kv.NewMemory())
	if err := s.AddTag(ctx, "p1", "Lang/Go"); err != nil {
		t.Fatalf("AddTag() failed: %v", err)
	}
	defer s.Close()

	server := testServer(t)
	h := NewHandler(server, s, log.New(io.Discard, "", 0))
	h.Attach()
	defer h.Detach()
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/tree")
	if err != nil {
		t.Fatalf("GET /tree failed: %v", err)
	}
	defer resp.Body.Close()
	var tree []*store.TreeNode
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(tree) != 1 || tree[0].Name != "Lang" || len(tree[0].Children) != 1 {
		t.Fatalf("tree = %+v", tree)
	}
	if tree[0].Children[0].Count != 1 {
		t.Errorf("Lang/Go count = %d, want 1", tree[0].Children[0].Count)
	}
}
