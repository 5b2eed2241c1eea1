package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/brojonat/bukeqi/service/oracle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// mockGenerator returns a canned reply and records what it was asked.
type mockGenerator struct {
	mu     sync.Mutex
	reply  string
	resp   *genai.GenerateContentResponse
	err    error
	calls  int
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.model = model
	m.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.prompt = contents[0].Parts[0].Text
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return textResponse(m.reply), nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(gen *mockGenerator) *Client {
	return newClient(gen, "", metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
}

func TestNew_WithoutKeyIsDisconnected(t *testing.T) {
	c, err := New(context.Background(), "", "", nil, testLogger())
	require.NoError(t, err)
	assert.False(t, c.Connected())
	assert.Equal(t, DefaultModel, c.model)
}

func TestGetWisdom_Disconnected(t *testing.T) {
	c := newClient(nil, "", nil, testLogger())

	resp := c.GetWisdom(context.Background(), "hello", ledger.DefaultIntent)
	assert.Equal(t, oracle.Response{Speech: SpeechDisconnected}, resp)
}

func TestGetWisdom_PromptKeepsTextVerbatim(t *testing.T) {
	gen := &mockGenerator{reply: `{"speech":"Noted."}`}
	c := newTestClient(gen)

	c.GetWisdom(context.Background(), "line one\nline two 不客气", ledger.IntentCodeHelp)

	assert.Equal(t, "User Request: \"line one\nline two 不客气\". Context: User wants \"Code Help\".", gen.prompt)
	assert.NotContains(t, gen.prompt, `\n`)
	assert.NotContains(t, gen.prompt, `\u`)
}

func TestGetWisdom_SpeechOnly(t *testing.T) {
	gen := &mockGenerator{reply: `{"speech":"You are welcome, seeker."}`}
	c := newTestClient(gen)

	resp := c.GetWisdom(context.Background(), "advise me", ledger.IntentFateReading)

	assert.Equal(t, oracle.Response{Speech: "You are welcome, seeker."}, resp)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, DefaultModel, gen.model)
	assert.Equal(t, `User Request: "advise me". Context: User wants "Fate Reading".`, gen.prompt)

	require.NotNil(t, gen.config)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	require.NotNil(t, gen.config.Temperature)
	assert.InDelta(t, 0.4, *gen.config.Temperature, 1e-6)
	assert.Same(t, wisdomResponseSchema, gen.config.ResponseSchema)
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Contains(t, gen.config.SystemInstruction.Parts[0].Text, "Oracle of the Bu Ke Qi Syndicate")
}

func TestGetWisdom_WithChartAndQuery(t *testing.T) {
	reply := map[string]any{
		"speech":   "I have projected a vision of the data below.",
		"sqlQuery": "SELECT block_date, SUM(value) FROM monad.transactions GROUP BY 1",
		"visualization": map[string]any{
			"title":      "MON Volume",
			"type":       "line",
			"yAxisLabel": "Volume in MON",
			"data": []map[string]any{
				{"label": "Mon", "value": 1200.5},
				{"label": "Tue", "value": 980},
			},
		},
	}
	raw, err := json.Marshal(reply)
	require.NoError(t, err)

	c := newTestClient(&mockGenerator{reply: string(raw)})
	resp := c.GetWisdom(context.Background(), "show me MON volume", ledger.IntentDataAnalytics)

	require.NotNil(t, resp.Visualization)
	assert.Equal(t, oracle.ChartLine, resp.Visualization.Kind)
	assert.Equal(t, "Volume in MON", resp.Visualization.YAxisLabel)
	assert.Equal(t, []oracle.DataPoint{{Label: "Mon", Value: 1200.5}, {Label: "Tue", Value: 980}}, resp.Visualization.Data)
	assert.Contains(t, resp.SQLQuery, "monad.transactions")
	assert.True(t, resp.HasArtifacts())
}

func TestGetWisdom_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
		want string
	}{
		{"transport error", &mockGenerator{err: errors.New("connection reset")}, SpeechInterference},
		{"empty reply", &mockGenerator{reply: "  "}, SpeechCorrupted},
		{"no candidates", &mockGenerator{resp: &genai.GenerateContentResponse{}}, SpeechCorrupted},
		{"not json", &mockGenerator{reply: "The spirits say hi"}, SpeechInterference},
		{"missing speech", &mockGenerator{reply: `{"sqlQuery":"SELECT 1"}`}, SpeechInterference},
		{"bad chart type", &mockGenerator{reply: `{"speech":"x","visualization":{"title":"t","type":"pie","data":[{"label":"a","value":1}]}}`}, SpeechInterference},
		{"chart without data", &mockGenerator{reply: `{"speech":"x","visualization":{"title":"t","type":"bar","data":[]}}`}, SpeechInterference},
		{"non-numeric value", &mockGenerator{reply: `{"speech":"x","visualization":{"title":"t","type":"bar","data":[{"label":"a","value":"lots"}]}}`}, SpeechInterference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.gen)
			resp := c.GetWisdom(context.Background(), "hello", ledger.DefaultIntent)
			assert.Equal(t, oracle.Response{Speech: tt.want}, resp)
		})
	}
}

func TestChooseOne(t *testing.T) {
	entries := []ledger.Request{
		{ID: "a1", Text: "Fund my dApp", Intent: ledger.IntentMonetaryAid},
		{ID: "b2", Text: "Read my fate", Intent: ledger.IntentFateReading},
	}
	gen := &mockGenerator{reply: `{"chosenId":"b2","prophecy":"Fortune favours the patient."}`}
	c := newTestClient(gen)

	sel := c.ChooseOne(context.Background(), entries)
	assert.Equal(t, oracle.Selection{ChosenID: "b2", Prophecy: "Fortune favours the patient."}, sel)

	assert.Contains(t, gen.prompt, `[{"id":"a1","text":"Fund my dApp","method":"Monetary Aid"},{"id":"b2","text":"Read my fate","method":"Fate Reading"}]`)
	assert.Contains(t, gen.prompt, "Bu Ke Qi (You're Welcome) ethos")
	assert.Same(t, selectionResponseSchema, gen.config.ResponseSchema)
	assert.Nil(t, gen.config.Temperature)
}

func TestChooseOne_Fallbacks(t *testing.T) {
	entries := []ledger.Request{{ID: "a1", Text: "hi", Intent: ledger.DefaultIntent}}

	t.Run("empty input", func(t *testing.T) {
		gen := &mockGenerator{reply: `{"chosenId":"a1","prophecy":"x"}`}
		sel := newTestClient(gen).ChooseOne(context.Background(), nil)
		assert.Equal(t, oracle.Selection{Prophecy: ProphecyVoid}, sel)
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("disconnected", func(t *testing.T) {
		sel := newClient(nil, "", nil, testLogger()).ChooseOne(context.Background(), entries)
		assert.Equal(t, oracle.Selection{Prophecy: ProphecyVoid}, sel)
	})

	tests := []struct {
		name string
		gen  *mockGenerator
		want string
	}{
		{"empty reply", &mockGenerator{reply: ""}, ProphecyObscured},
		{"transport error", &mockGenerator{err: errors.New("quota")}, ProphecyInterference},
		{"not json", &mockGenerator{reply: "a1"}, ProphecyInterference},
		{"missing prophecy", &mockGenerator{reply: `{"chosenId":"a1"}`}, ProphecyInterference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := newTestClient(tt.gen).ChooseOne(context.Background(), entries)
			assert.Equal(t, oracle.Selection{Prophecy: tt.want}, sel)
		})
	}
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := compileSchema("broken", `{"type": 12}`)
	assert.Error(t, err)
}
