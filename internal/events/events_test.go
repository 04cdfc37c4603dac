package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

func newTestServer(t *testing.T, token string, statuses StatusProvider) (*httptest.Server, *Hub) {
	t.Helper()

	hub := NewHub(nil)
	server := NewServer(ServerConfig{
		Hub:      hub,
		Verifier: &StaticTokenVerifier{Token: token},
		Statuses: statuses,
	})

	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts, hub
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var envelope Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return envelope
}

// --- Auth Tests ---

func TestServer_RejectsBadToken(t *testing.T) {
	ts, hub := newTestServer(t, "secret", nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts)+"?token=wrong", nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
	if hub.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", hub.Subscribers())
	}
}

func TestServer_RejectsMissingToken(t *testing.T) {
	ts, _ := newTestServer(t, "secret", nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestServer_AcceptsTokenQueryParam(t *testing.T) {
	ts, hub := newTestServer(t, "secret", nil)

	dial(t, wsURL(ts)+"?token=secret", nil)
	waitForSubscribers(t, hub, 1)
}

func TestServer_AcceptsBearerHeader(t *testing.T) {
	ts, hub := newTestServer(t, "secret", nil)

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	dial(t, wsURL(ts), header)
	waitForSubscribers(t, hub, 1)
}

func TestServer_EmptyConfiguredTokenAcceptsAll(t *testing.T) {
	ts, hub := newTestServer(t, "", nil)

	dial(t, wsURL(ts), nil)
	waitForSubscribers(t, hub, 1)
}

// --- Broadcast Tests ---

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	ts, hub := newTestServer(t, "", nil)

	first := dial(t, wsURL(ts), nil)
	second := dial(t, wsURL(ts), nil)
	waitForSubscribers(t, hub, 2)

	nodeID := int64(10)
	update := domain.NewWorkflowUpdate(1, &nodeID, domain.EventStatusInProgress)
	update.WorkflowName = "test-workflow"
	hub.Broadcast(update)

	for _, conn := range []*websocket.Conn{first, second} {
		envelope := readEnvelope(t, conn)
		if envelope.Type != "workflow-update" {
			t.Fatalf("expected workflow-update, got %q", envelope.Type)
		}

		data, err := json.Marshal(envelope.Data)
		if err != nil {
			t.Fatalf("re-marshal data: %v", err)
		}
		var got domain.WorkflowUpdate
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal update: %v", err)
		}
		if got.WorkflowID != 1 || got.NodeID == nil || *got.NodeID != 10 {
			t.Errorf("unexpected update %+v", got)
		}
		if got.Status != domain.EventStatusInProgress {
			t.Errorf("expected in_progress, got %q", got.Status)
		}
	}
}

func TestHub_DisconnectedSubscriberIsRemoved(t *testing.T) {
	ts, hub := newTestServer(t, "", nil)

	conn := dial(t, wsURL(ts), nil)
	waitForSubscribers(t, hub, 1)

	conn.Close()
	waitForSubscribers(t, hub, 0)
}

// --- Status Query Tests ---

func TestServer_WorkflowStatusQuery(t *testing.T) {
	statuses := StatusFunc(func(_ context.Context, workflowID int64) (string, error) {
		if workflowID != 7 {
			return "", repo.ErrNotFound
		}
		return string(domain.WorkflowStatusActive), nil
	})
	ts, _ := newTestServer(t, "", statuses)

	conn := dial(t, wsURL(ts), nil)
	if err := conn.WriteJSON(map[string]any{"type": "workflow-status", "workflowId": 7}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	envelope := readEnvelope(t, conn)
	if envelope.Type != "workflow-status" {
		t.Fatalf("expected workflow-status reply, got %q", envelope.Type)
	}

	data, _ := json.Marshal(envelope.Data)
	var reply statusReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.WorkflowID != 7 || reply.Status != "active" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestServer_WorkflowStatusNotFound(t *testing.T) {
	statuses := StatusFunc(func(context.Context, int64) (string, error) {
		return "", repo.ErrNotFound
	})
	ts, _ := newTestServer(t, "", statuses)

	conn := dial(t, wsURL(ts), nil)
	if err := conn.WriteJSON(map[string]any{"type": "workflow-status", "workflowId": 99}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	envelope := readEnvelope(t, conn)
	if envelope.Type != "error" {
		t.Fatalf("expected error reply, got %q", envelope.Type)
	}
}

func TestServer_UnknownQueryType(t *testing.T) {
	ts, _ := newTestServer(t, "", nil)

	conn := dial(t, wsURL(ts), nil)
	if err := conn.WriteJSON(map[string]any{"type": "subscribe-all"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	envelope := readEnvelope(t, conn)
	if envelope.Type != "error" {
		t.Fatalf("expected error reply, got %q", envelope.Type)
	}
}

// --- Verifier Tests ---

func TestStaticTokenVerifier(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		wantErr    bool
	}{
		{"match", "secret", "secret", false},
		{"mismatch", "secret", "wrong", true},
		{"empty presented", "secret", "", true},
		{"disabled", "", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &StaticTokenVerifier{Token: tt.configured}
			err := verifier.Verify(tt.presented)
			if tt.wantErr && err == nil {
				t.Error("expected rejection")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// waitForSubscribers ждёт, пока реестр не придёт к нужному размеру.
// Регистрация происходит в горутинах сервера после handshake.
func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, got %d", want, hub.Subscribers())
}
