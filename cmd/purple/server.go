package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/board"
	"github.com/ixentbench/purple/pkg/errmodel"
	"github.com/ixentbench/purple/pkg/runtime"
	"github.com/ixentbench/purple/pkg/store"
)

const maxBodyBytes = 1 << 20

// deps is everything the HTTP surface needs. decisions and mcp may be nil.
type deps struct {
	runner         *runtime.Runner
	decisions      store.DecisionStore
	mcp            http.Handler
	requestTimeout time.Duration
	logger         *slog.Logger
	model          string
}

func buildMux(d deps) http.Handler {
	if d.logger == nil {
		d.logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /.well-known/agent.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, agentCard(d))
	})
	mux.HandleFunc("POST /decide", d.handleDecide)
	mux.HandleFunc("POST /{$}", d.handleDecide)
	mux.HandleFunc("GET /api/decisions", d.handleListDecisions)
	mux.HandleFunc("GET /api/decisions/{id}", d.handleGetDecision)
	if d.mcp != nil {
		mux.Handle("/mcp", d.mcp)
	}
	return otelhttp.NewHandler(mux, "purple")
}

func agentCard(d deps) agent.Card {
	endpoints := []string{"/decide"}
	if d.mcp != nil {
		endpoints = append(endpoints, "/mcp")
	}
	return agent.Card{
		AgentID:     d.runner.AgentID(),
		Name:        "Purple Agent",
		Description: "Plays the gear rotation puzzle one validated move at a time.",
		Version:     version,
		Model:       d.model,
		Skills:      []string{"decide_move"},
		Endpoints:   endpoints,
	}
}

// handleDecide answers 400 only for payloads that are not observations. Every
// other outcome, including backend failure, is a 200 with a reply.
func (d deps) handleDecide(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errmodel.WriteHTTP(w, r, errmodel.Validation("payload_too_large", "observation exceeds 1 MiB", nil))
			return
		}
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", err.Error(), nil))
		return
	}
	obs, err := board.Parse(raw)
	if err != nil {
		d.logger.Info("rejected observation", "error", err)
		errmodel.WriteHTTP(w, r, err)
		return
	}
	ctx := r.Context()
	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}
	writeJSON(w, http.StatusOK, d.runner.Decide(ctx, obs))
}

func (d deps) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if d.decisions == nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("not_found", "decision log is disabled", nil))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "limit must be an integer", map[string]any{"limit": v}))
			return
		}
		limit = n
	}
	rows, err := d.decisions.ListDecisions(r.Context(), store.ClampLimit(limit))
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.System("store", "list decisions", nil, err))
		return
	}
	if rows == nil {
		rows = []store.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": rows})
}

func (d deps) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if d.decisions == nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("not_found", "decision log is disabled", nil))
		return
	}
	rec, err := d.decisions.GetDecision(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		errmodel.WriteHTTP(w, r, errmodel.Validation("not_found", "no such decision", nil))
	case errors.Is(err, store.ErrInvalidID):
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid decision id", nil))
	case err != nil:
		errmodel.WriteHTTP(w, r, errmodel.System("store", "get decision", nil, err))
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
