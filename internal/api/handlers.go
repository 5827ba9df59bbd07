package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/tether/internal/storage"
)

const maxConnectBodySize = 64 << 10 // 64KB
const maxHistoryLimit = 500

// ConnectionStore abstracts the state manager for the API layer.
type ConnectionStore interface {
	Connect(ctx context.Context, channelID, guildID string) error
	Disconnect(ctx context.Context) (*storage.ConnectionSnapshot, error)
	Current(ctx context.Context) (*storage.ConnectionSnapshot, error)
	RecentHistory(ctx context.Context, limit int) ([]storage.HistoryEvent, error)
}

type AppDeps struct {
	Store ConnectionStore
	Token string
}

// ConnectRequest is the body of POST /connection.
type ConnectRequest struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

type connectionJSON struct {
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id,omitempty"`
	ConnectedAt string `json:"connected_at"`
	LastUpdated string `json:"last_updated"`
}

type historyEventJSON struct {
	ID           int64  `json:"id"`
	ChannelID    string `json:"channel_id"`
	GuildID      string `json:"guild_id,omitempty"`
	Action       string `json:"action"`
	Timestamp    string `json:"timestamp"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func toConnectionJSON(snap *storage.ConnectionSnapshot) *connectionJSON {
	if snap == nil {
		return nil
	}
	return &connectionJSON{
		ChannelID:   snap.ChannelID,
		GuildID:     snap.GuildID,
		ConnectedAt: snap.ConnectedAt.Format(time.RFC3339),
		LastUpdated: snap.LastUpdated.Format(time.RFC3339),
	}
}

// NewAppHandler builds the management API. /health is unauthenticated;
// everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/connection", handleGetConnection(deps))
		r.Post("/connection", handleConnect(deps))
		r.Delete("/connection", handleDisconnect(deps))
		r.Get("/history", handleHistory(deps))
	})

	return r
}

func handleGetConnection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Store.Current(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading connection state: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"connected":  snap != nil,
			"connection": toConnectionJSON(snap),
		})
	}
}

func handleConnect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxConnectBodySize)
		defer r.Body.Close()

		var req ConnectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Store.Connect(r.Context(), req.ChannelID, req.GuildID); err != nil {
			var verr *storage.ValidationError
			if errors.As(err, &verr) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", verr)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "connect failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "connected",
			"channel_id": req.ChannelID,
		})
	}
}

func handleDisconnect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Store.Disconnect(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "disconnect failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"disconnected": snap != nil,
			"connection":   toConnectionJSON(snap),
		})
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			limit = n
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		events, err := deps.Store.RecentHistory(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading history: %v", err)
			return
		}

		out := make([]historyEventJSON, len(events))
		for i, ev := range events {
			out[i] = historyEventJSON{
				ID:           ev.ID,
				ChannelID:    ev.ChannelID,
				GuildID:      ev.GuildID,
				Action:       string(ev.Action),
				Timestamp:    ev.Timestamp.Format(time.RFC3339),
				ErrorMessage: ev.ErrorMessage,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
