package server

import (
	"log/slog"
	"net/http"
)

// handleGetWallet returns the current identity.
// GET /api/v1/wallet
func handleGetWallet(id Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, id.Current(), http.StatusOK)
	})
}

// handleConnectWallet creates or loads the burner identity and refreshes
// its balance.
// POST /api/v1/wallet
func handleConnectWallet(id Identity, o Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := id.Connect(r.Context())
		if err != nil {
			logger.Error("failed to connect identity", "error", err)
			writeError(w, "failed to initialize identity", http.StatusInternalServerError)
			return
		}
		o.Notify()
		writeJSON(w, identity, http.StatusOK)
	})
}

// handleRefreshWallet re-reads the balance of the connected identity.
// POST /api/v1/wallet/refresh
func handleRefreshWallet(id Identity, o Oracle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := id.Current()
		if !current.Connected {
			writeError(w, "no identity connected", http.StatusPreconditionFailed)
			return
		}
		id.RefreshBalance(r.Context(), current.Address)
		o.Notify()
		writeJSON(w, id.Current(), http.StatusOK)
	})
}

// handleDisconnectWallet burns the identity.
// DELETE /api/v1/wallet
func handleDisconnectWallet(id Identity, o Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := id.Disconnect(r.Context()); err != nil {
			logger.Error("failed to disconnect identity", "error", err)
			writeError(w, "failed to burn identity", http.StatusInternalServerError)
			return
		}
		o.Notify()
		w.WriteHeader(http.StatusNoContent)
	})
}
