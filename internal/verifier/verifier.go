package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dnicheck/internal/models"
)

const defaultTimeout = 30 * time.Second

// Verifier checks one identifier against the remote lookup service.
// Implementations never fail: every problem is reported as an outcome.
type Verifier interface {
	Verify(ctx context.Context, dni string) models.VerificationOutcome
}

// Config holds the endpoint and credentials of the remote service
type Config struct {
	URL          string
	User         string
	Password     string
	DocumentType string
	Timeout      time.Duration
}

// Client calls the remote verification endpoint over HTTP
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new verification client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DocumentType == "" {
		cfg.DocumentType = "1"
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// verifyRequest is the envelope expected by the remote service
type verifyRequest struct {
	User         string `json:"USUARIO"`
	Password     string `json:"CONTRASENA_USUARIO"`
	DocumentType string `json:"TIPO_DOCUMENTO"`
	Number       string `json:"NRO_DOCUMENTO"`
}

// Verify sends a single lookup for dni. There is exactly one attempt.
func (c *Client) Verify(ctx context.Context, dni string) models.VerificationOutcome {
	body, err := json.Marshal(verifyRequest{
		User:         c.cfg.User,
		Password:     c.cfg.Password,
		DocumentType: c.cfg.DocumentType,
		Number:       dni,
	})
	if err != nil {
		return failure(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failure(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return models.VerificationOutcome{
			Resultado: models.OutcomeError,
			Detalle:   string(raw),
		}
	}

	// Numbers stay as written so numeric codes are not rendered as floats
	var data map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return failure(fmt.Errorf("failed to decode response: %w", err))
	}
	if dec.More() {
		return failure(fmt.Errorf("failed to decode response: trailing data"))
	}

	return models.VerificationOutcome{
		Resultado: resultCode(data),
		Detalle:   data,
	}
}

// resultCode extracts the Resultado field, falling back to the no-response code
func resultCode(data map[string]interface{}) string {
	switch v := data["Resultado"].(type) {
	case nil:
		return models.OutcomeNoResponse
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func failure(err error) models.VerificationOutcome {
	return models.VerificationOutcome{
		Resultado: models.OutcomeError,
		Detalle:   err.Error(),
	}
}
