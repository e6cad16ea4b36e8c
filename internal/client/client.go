// Package client talks to a dnicheck server over HTTP and WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dnicheck/internal/models"

	"github.com/gorilla/websocket"
)

// Client handles communication with a dnicheck server
type Client struct {
	baseURL    string
	httpClient *http.Client
	wsDialer   *websocket.Dialer
}

// NewClient creates a new client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		wsDialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// APIError is a non-success answer from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Progress is a job snapshot as reported by the server
type Progress struct {
	TaskID     string             `json:"task_id,omitempty"`
	Status     models.JobStatus   `json:"status"`
	Progress   int                `json:"progress"`
	Processed  int                `json:"processed"`
	Total      int                `json:"total"`
	Message    string             `json:"message,omitempty"`
	ResultFile string             `json:"result_file,omitempty"`
	Resultados []models.RowResult `json:"resultados,omitempty"`
}

// VerifyResponse is the answer of a single identifier lookup
type VerifyResponse struct {
	DNI       string      `json:"DNI"`
	Resultado string      `json:"Resultado"`
	Detalle   interface{} `json:"Detalle"`
}

type uploadResponse struct {
	TaskID string `json:"task_id"`
}

// Upload sends a spreadsheet and returns the id of the task verifying it
func (c *Client) Upload(ctx context.Context, filename string, reader io.Reader) (string, error) {
	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file field: %w", err)
	}
	if _, err := io.Copy(fileWriter, reader); err != nil {
		return "", fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	var resp uploadResponse
	if err := c.do(httpReq, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("server did not return a task id")
	}
	return resp.TaskID, nil
}

// Progress fetches the current snapshot of a task
func (c *Client) Progress(ctx context.Context, taskID string) (*Progress, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/progress/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var p Progress
	if err := c.do(httpReq, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Download writes the consolidated results of a completed task to writer
func (c *Client) Download(ctx context.Context, taskID string, writer io.Writer) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/descargar/"+url.PathEscape(taskID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	return nil
}

// VerifyDNI looks up a single identifier
func (c *Client) VerifyDNI(ctx context.Context, dni string) (*VerifyResponse, error) {
	body, err := json.Marshal(map[string]string{"dni": dni})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/verificar-dni", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp VerifyResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends req and decodes a JSON success body into out
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(bodyBytes))
	if err := json.Unmarshal(bodyBytes, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
