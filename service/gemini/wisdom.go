package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/bukeqi/service/oracle"
	"google.golang.org/genai"
)

// Fallback speech for the wisdom call.
const (
	SpeechDisconnected = "The ley lines are disconnected (Missing API Key)."
	SpeechCorrupted    = "The data stream is corrupted."
	SpeechInterference = "Interference detected in the ether. Try again later."
)

const wisdomInstruction = `
You are the "Oracle of the Bu Ke Qi Syndicate".
You are connected to the "Dune Analytics Sim Layer".

Your Goal:
1. Answer the user's request with a mystical, cyberpunk persona.
2. IF the user asks for DATA, ANALYTICS, CHARTS, or STATISTICS (e.g., "Show me MON flows", "Dune dashboard for users", "Token supply", "Coinbase holdings"):
   - You MUST generate a "Simulation" of that dashboard using JSON data.
   - You MUST generate a VALID Dune V2 (Trino/Presto) SQL Query that would fetch this specific data on the blockchain.
   - You MUST explicitly state in your speech: "I have projected a vision of the data below (The Chart). To see the absolute truth, you must cast this glyph (The Code) upon the Dune Network."
   - For visualization data, invent REALISTIC looking data points that match the query context.
   - IMPORTANT: 'visualization.data' MUST be an array of objects with 'label' and 'value'.
3. IF the user asks for generic advice or code:
   - Return JSON with just the speech.

Response Format (JSON):
{
  "speech": "Your mystical spoken response here...",
  "sqlQuery": "-- Your Expert Dune SQL Code Here\nSELECT * FROM...",
  "visualization": {
    "title": "Chart Title",
    "type": "bar" | "line",
    "yAxisLabel": "Label (e.g. Volume in MON)",
    "data": [
      { "label": "Time/Category", "value": 123 }
    ]
  }
}
`

// GetWisdom answers a single request. It never fails; every degraded path
// returns a fixed speech with no chart or query.
func (c *Client) GetWisdom(ctx context.Context, text, intent string) oracle.Response {
	if c.gen == nil {
		return oracle.Response{Speech: SpeechDisconnected}
	}

	prompt := fmt.Sprintf("User Request: \"%s\". Context: User wants \"%s\".", text, intent)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(wisdomInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    wisdomResponseSchema,
	}

	var resp oracle.Response
	err := c.generateJSON(ctx, "wisdom", prompt, cfg, wisdomValidator, &resp)
	switch {
	case errors.Is(err, errEmptyReply):
		c.logger.WarnContext(ctx, "wisdom reply was empty")
		return oracle.Response{Speech: SpeechCorrupted}
	case err != nil:
		c.logger.ErrorContext(ctx, "wisdom call failed", "error", err)
		return oracle.Response{Speech: SpeechInterference}
	}

	c.logger.DebugContext(ctx, "wisdom received",
		"speech_len", len(resp.Speech),
		"has_visualization", resp.Visualization != nil,
		"has_sql", resp.SQLQuery != "",
	)
	return resp
}
