package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"churnguard/ml"
	"churnguard/scoring"
)

func dialHub(t *testing.T) (*Hub, *websocket.Conn, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().ConnectedClients != 1 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn, cancel
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return msg
}

func TestHubBroadcastsPredictions(t *testing.T) {
	hub, conn, cancel := dialHub(t)
	defer cancel()

	hub.PublishPrediction(&scoring.Result{ID: "p1", Probability: 0.73, HighRisk: true, Threshold: 0.5})

	msg := readMessage(t, conn)
	if msg.Type != PredictionEvent || msg.ID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var result scoring.Result
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if result.ID != "p1" || !result.HighRisk {
		t.Fatalf("unexpected payload: %+v", result)
	}
}

func TestHubBroadcastsBundleReload(t *testing.T) {
	hub, conn, cancel := dialHub(t)
	defer cancel()

	bundle, err := ml.NewBundle(ml.NumericSchema("tenure"), &ml.LogisticRegression{Coefficients: []float64{1}},
		ml.WithThreshold(0.4), ml.WithMetadata("churn", "3", "abc"))
	if err != nil {
		t.Fatal(err)
	}
	hub.PublishBundle(bundle)

	msg := readMessage(t, conn)
	if msg.Type != BundleReloaded {
		t.Fatalf("unexpected type %s", msg.Type)
	}
	var payload BundleMessage
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Version != "3" || payload.Threshold != 0.4 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub, conn, cancel := dialHub(t)
	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close")
	}
	deadline := time.Now().Add(time.Second)
	for hub.Stats().ConnectedClients != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected no connected clients")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
