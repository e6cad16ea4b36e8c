package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dnicheck/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestHubPublishesSnapshots(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", HandleWebSocket(hub))
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(models.Job{ID: "job-1", Status: models.JobStatusProcessing, Progress: 50, Processed: 1, Total: 2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "job_progress" {
		t.Fatalf("type = %q", msg.Type)
	}
	if msg.Data["task_id"] != "job-1" || msg.Data["status"] != "processing" || msg.Data["progress"] != float64(50) {
		t.Fatalf("data = %v", msg.Data)
	}
}

func TestTaskSubscription(t *testing.T) {
	hub := NewHub()
	all := NewClient(hub, nil, "")
	one := NewClient(hub, nil, "job-1")

	if !all.wants("job-2") || !one.wants("job-1") {
		t.Fatal("subscriber missed its task")
	}
	if one.wants("job-2") {
		t.Fatal("task subscriber received another task")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.events)+10; i++ {
		hub.Publish(models.Job{ID: "job-1", Status: models.JobStatusProcessing})
	}
	if len(hub.events) != cap(hub.events) {
		t.Fatalf("queue len = %d, want %d", len(hub.events), cap(hub.events))
	}
}
