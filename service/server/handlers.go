package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/oracle"
)

const (
	maxRequestBodySize = 64 << 10 // 64KB - plenty for a wish
	maxTextLength      = 4000     // runes
	maxIntentLength    = 100      // runes
)

// handleGetOracle returns the current oracle snapshot.
// GET /api/v1/oracle
func handleGetOracle(o Oracle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, o.Snapshot(), http.StatusOK)
	})
}

// handleDismiss ends the current speech early.
// POST /api/v1/oracle/dismiss
func handleDismiss(o Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := o.Dismiss(); err != nil {
			writeOracleError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleListIntents lists the suggested methods of help.
// GET /api/v1/intents
func handleListIntents() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"intents": ledger.KnownIntents,
			"default": ledger.DefaultIntent,
		}, http.StatusOK)
	})
}

type submitRequest struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
}

// handleSubmitRequest accepts a tribute and starts a consultation.
// POST /api/v1/requests
func handleSubmitRequest(o Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode submit request", "error", err)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, "request body too large: maximum size is 64KB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateText("text", req.Text, maxTextLength); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateText("intent", req.Intent, maxIntentLength); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		recorded, err := o.Submit(r.Context(), req.Text, req.Intent)
		if err != nil {
			writeOracleError(w, err, logger)
			return
		}

		writeJSON(w, recorded, http.StatusAccepted)
	})
}

// handleListRequests returns the ledger, newest first.
// GET /api/v1/requests
func handleListRequests(o Oracle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := o.Ledger()
		writeJSON(w, map[string]interface{}{
			"requests": entries,
			"count":    len(entries),
		}, http.StatusOK)
	})
}

type ritualRequest struct {
	Confirm bool `json:"confirm"`
}

// handleRunRitual runs the closing ritual. The caller must confirm.
// POST /api/v1/ritual
func handleRunRitual(o Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req ritualRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		confirm := func(context.Context, int) bool { return req.Confirm }
		result, err := o.RunClosingRitual(r.Context(), confirm)
		if err != nil {
			writeOracleError(w, err, logger)
			return
		}

		writeJSON(w, result, http.StatusOK)
	})
}

// writeOracleError maps sequencer errors to HTTP statuses.
func writeOracleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, oracle.ErrEmptyRequest), errors.Is(err, oracle.ErrRitualDeclined):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, oracle.ErrIdentityRequired):
		writeError(w, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, oracle.ErrNotIdle), errors.Is(err, oracle.ErrNotSpeaking):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, oracle.ErrLedgerEmpty):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, oracle.ErrClosed):
		writeError(w, "oracle is shutting down", http.StatusServiceUnavailable)
	default:
		logger.Error("oracle operation failed", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateText rejects oversized input and control characters other than
// ordinary whitespace. Emptiness is the sequencer's call.
func validateText(field, value string, maxLen int) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s must be valid UTF-8", field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%s too long: maximum length is %d characters", field, maxLen)
	}
	if strings.ContainsFunc(value, func(r rune) bool {
		return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
	}) {
		return fmt.Errorf("%s contains control characters", field)
	}
	return nil
}
