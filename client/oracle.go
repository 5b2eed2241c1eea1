package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/oracle"
	"github.com/brojonat/bukeqi/service/wallet"
)

// APIError is returned for any non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Intents lists the suggested methods of help.
type Intents struct {
	Intents []string `json:"intents"`
	Default string   `json:"default"`
}

// Client is the HTTP client for the oracle service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new oracle service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

// Snapshot returns the oracle's current state, display, ledger and identity.
func (c *Client) Snapshot(ctx context.Context) (*oracle.Snapshot, error) {
	var snap oracle.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/oracle", nil, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Submit offers a request to the oracle. The returned request is the entry
// recorded in the ledger; the answer arrives later on the snapshot.
func (c *Client) Submit(ctx context.Context, text, intent string) (*ledger.Request, error) {
	body := map[string]string{
		"text":   text,
		"intent": intent,
	}
	var req ledger.Request
	if err := c.do(ctx, http.MethodPost, "/api/v1/requests", body, http.StatusAccepted, &req); err != nil {
		return nil, err
	}
	c.logger.Debug("request submitted", "id", req.ID, "intent", req.Intent)
	return &req, nil
}

// Ledger returns every recorded request, newest first.
func (c *Client) Ledger(ctx context.Context) ([]ledger.Request, error) {
	var resp struct {
		Requests []ledger.Request `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/requests", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// Intents returns the suggested methods of help.
func (c *Client) Intents(ctx context.Context) (*Intents, error) {
	var resp Intents
	if err := c.do(ctx, http.MethodGet, "/api/v1/intents", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dismiss ends the current speech early.
func (c *Client) Dismiss(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/oracle/dismiss", nil, http.StatusNoContent, nil)
}

// RunRitual triggers the closing ritual. The server refuses unless confirm
// is true.
func (c *Client) RunRitual(ctx context.Context, confirm bool) (*oracle.RitualResult, error) {
	body := map[string]bool{"confirm": confirm}
	var result oracle.RitualResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/ritual", body, http.StatusOK, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("closing ritual completed", "chosen_id", result.ChosenID)
	return &result, nil
}

// Wallet returns the current identity.
func (c *Client) Wallet(ctx context.Context) (*wallet.Identity, error) {
	var id wallet.Identity
	if err := c.do(ctx, http.MethodGet, "/api/v1/wallet", nil, http.StatusOK, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ConnectWallet creates or loads the burner identity.
func (c *Client) ConnectWallet(ctx context.Context) (*wallet.Identity, error) {
	var id wallet.Identity
	if err := c.do(ctx, http.MethodPost, "/api/v1/wallet", nil, http.StatusOK, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// RefreshWallet re-reads the balance of the connected identity.
func (c *Client) RefreshWallet(ctx context.Context) (*wallet.Identity, error) {
	var id wallet.Identity
	if err := c.do(ctx, http.MethodPost, "/api/v1/wallet/refresh", nil, http.StatusOK, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// BurnWallet discards the identity.
func (c *Client) BurnWallet(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/wallet", nil, http.StatusNoContent, nil)
}

// do sends a request with an optional JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
