// Package api serves the autotrader's read-only status endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ichimoku-autotrader/internal/autotrader"
	"ichimoku-autotrader/internal/model"
)

// StatusSource provides the latest agent snapshot.
type StatusSource interface {
	Status() *autotrader.Status
}

// JournalReader reads recent order journal entries.
type JournalReader interface {
	Recent(kind string, limit int) ([]model.JournalEntry, error)
}

const maxJournalLimit = 500

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

// get wraps a handler so it only answers GET (and CORS preflight).
func get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodGet:
			h(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		}
	}
}

// NewRouter sets up the status routes. journal may be nil.
func NewRouter(src StatusSource, journal JournalReader) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", get(func(w http.ResponseWriter, r *http.Request) {
		st := src.Status()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":             "ok",
			"updated_at":         st.UpdatedAt,
			"history":            st.History,
			"consistency_faults": st.Faults,
		})
	}))

	mux.HandleFunc("/api/v1/status", get(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Status())
	}))

	mux.HandleFunc("/api/v1/signal", get(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Status().SignalView())
	}))

	mux.HandleFunc("/api/v1/inventory", get(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Status().InventoryView())
	}))

	// GET /api/v1/journal?kind=fill&limit=50
	mux.HandleFunc("/api/v1/journal", get(func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
			return
		}
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxJournalLimit)
		}
		entries, err := journal.Recent(r.URL.Query().Get("kind"), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if entries == nil {
			entries = []model.JournalEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}))

	return mux
}
