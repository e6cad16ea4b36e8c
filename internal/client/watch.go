package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// wsMessage mirrors the envelope broadcast on /ws
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Wait polls a task every interval until it reaches a terminal state.
// onUpdate, if set, sees every snapshot including the last one.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration, onUpdate func(*Progress)) (*Progress, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p, err := c.Progress(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(p)
		}
		if p.Status.IsTerminal() {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Watch follows a task over the server's WebSocket stream until it reaches a
// terminal state
func (c *Client) Watch(ctx context.Context, taskID string, onUpdate func(*Progress)) (*Progress, error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := c.wsDialer.DialContext(ctx, wsURL+"?task_id="+url.QueryEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect websocket: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	// Subscribed first so a transition right after this poll is not missed
	p, err := c.Progress(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if onUpdate != nil {
		onUpdate(p)
	}
	if p.Status.IsTerminal() {
		return p, nil
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("websocket read failed: %w", err)
		}
		if msg.Type != "job_progress" {
			continue
		}

		var event Progress
		if err := json.Unmarshal(msg.Data, &event); err != nil || event.TaskID != taskID {
			continue
		}
		if onUpdate != nil {
			onUpdate(&event)
		}
		if event.Status.IsTerminal() {
			return &event, nil
		}
	}
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws"
	return u.String(), nil
}
