package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

const temperature = 0.4

// generator is the subset of the genai Models service we call.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var errEmptyReply = errors.New("empty reply")

// Client talks to Gemini on behalf of the oracle. It implements both
// oracle.WisdomClient and oracle.SelectionClient. Without an API key it
// never makes a call and answers with fixed phrases.
type Client struct {
	gen     generator
	model   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Client. An empty apiKey yields a disconnected Client rather
// than an error.
func New(ctx context.Context, apiKey, model string, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return newClient(nil, model, m, logger), nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newClient(client.Models, model, m, logger), nil
}

func newClient(gen generator, model string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		gen:     gen,
		model:   model,
		metrics: m,
		logger:  logger.With("component", "gemini", "model", model),
	}
}

// Connected reports whether the client has credentials.
func (c *Client) Connected() bool {
	return c.gen != nil
}

// generateJSON calls the model and decodes its reply into out after
// validating it against schema. errEmptyReply is returned when the model
// produced no text.
func (c *Client) generateJSON(ctx context.Context, operation, prompt string, cfg *genai.GenerateContentConfig, schema *jsonschema.Schema, out any) error {
	start := time.Now()
	status := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordGenAICall(operation, status, time.Since(start).Seconds())
		}
	}()

	resp, err := c.gen.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		status = "error"
		return fmt.Errorf("generate content failed: %w", err)
	}

	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		status = "empty"
		return errEmptyReply
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		status = "invalid"
		return fmt.Errorf("reply is not JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		status = "invalid"
		return fmt.Errorf("reply failed schema validation: %w", err)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		status = "invalid"
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}
