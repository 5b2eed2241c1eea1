package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/oracle"
	"google.golang.org/genai"
)

// Fallback prophecies for the selection call.
const (
	ProphecyVoid         = "The void is empty."
	ProphecyObscured     = "The mists obscure the choice."
	ProphecyInterference = "Interference prevents selection."
)

const selectionInstruction = "Select one winner. Return JSON."

type candidate struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Method string `json:"method"`
}

// ChooseOne asks the model to pick one worthy entry. Failures are reported
// as an empty ChosenID with a fixed prophecy.
func (c *Client) ChooseOne(ctx context.Context, entries []ledger.Request) oracle.Selection {
	if c.gen == nil || len(entries) == 0 {
		return oracle.Selection{Prophecy: ProphecyVoid}
	}

	candidates := make([]candidate, len(entries))
	for i, e := range entries {
		candidates[i] = candidate{ID: e.ID, Text: e.Text, Method: e.Intent}
	}
	payload, err := json.Marshal(candidates)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode candidates", "error", err)
		return oracle.Selection{Prophecy: ProphecyInterference}
	}

	prompt := fmt.Sprintf("Messages: %s. Pick one worthy winner based on the Bu Ke Qi (You're Welcome) ethos.", payload)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(selectionInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    selectionResponseSchema,
	}

	var sel oracle.Selection
	err = c.generateJSON(ctx, "selection", prompt, cfg, selectionValidator, &sel)
	switch {
	case errors.Is(err, errEmptyReply):
		c.logger.WarnContext(ctx, "selection reply was empty")
		return oracle.Selection{Prophecy: ProphecyObscured}
	case err != nil:
		c.logger.ErrorContext(ctx, "selection call failed", "error", err)
		return oracle.Selection{Prophecy: ProphecyInterference}
	}

	c.logger.InfoContext(ctx, "selection received", "chosen_id", sel.ChosenID, "candidates", len(entries))
	return sel
}
