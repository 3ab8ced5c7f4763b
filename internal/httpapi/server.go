// Package httpapi exposes the live tables over HTTP: JSON snapshots, an SSE
// stream per table and an intent endpoint for clients outside Discord.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/feed"
	"github.com/swarm-blackjack/casino-bot/internal/gateway"
	"github.com/swarm-blackjack/casino-bot/internal/registry"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

type Server struct {
	reg   *registry.Registry
	gw    *gateway.Gateway
	bus   *feed.Bus
	redis *feed.Redis
	log   *zap.Logger
}

func New(reg *registry.Registry, gw *gateway.Gateway, bus *feed.Bus, redis *feed.Redis, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{reg: reg, gw: gw, bus: bus, redis: redis, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /tables", s.listTables)
	mux.HandleFunc("POST /tables", s.startTable)
	mux.HandleFunc("GET /tables/{location}", s.getTable)
	mux.HandleFunc("GET /tables/{location}/stream", s.stream)
	mux.HandleFunc("POST /tables/{location}/actions", s.action)
	return corsMiddleware(mux)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func parseBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

var codeStatus = map[gateway.Code]int{
	gateway.OK:                http.StatusOK,
	gateway.NotSeated:         http.StatusForbidden,
	gateway.InsufficientFunds: http.StatusPaymentRequired,
	gateway.WrongPhase:        http.StatusConflict,
	gateway.WrongStatus:       http.StatusConflict,
	gateway.AlreadyExists:     http.StatusConflict,
	gateway.NoTable:           http.StatusNotFound,
	gateway.TableClosed:       http.StatusGone,
	gateway.InvalidAmount:     http.StatusBadRequest,
	gateway.UnknownAction:     http.StatusBadRequest,
	gateway.LedgerUnavailable: http.StatusServiceUnavailable,
	gateway.Internal:          http.StatusInternalServerError,
}

func (s *Server) writeIntentError(w http.ResponseWriter, err error) {
	code := gateway.CodeOf(err)
	if code == gateway.Internal || code == gateway.LedgerUnavailable {
		s.log.Error("intent failed", zap.Stringer("code", code), zap.Error(err))
	}
	writeError(w, codeStatus[code], code.String(), gateway.Message(code))
}

// ── Handlers ──────────────────────────────────────────────────────────────────

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	published, dropped := s.redis.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         "casino-bot",
		"tables":          s.reg.Len(),
		"eventsPublished": published,
		"eventsDropped":   dropped,
	})
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	tables := s.reg.Tables()
	snaps := make([]table.Snapshot, 0, len(tables))
	for _, t := range tables {
		if t.Active() {
			snaps = append(snaps, t.Snapshot())
		}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	snap, err := s.gw.Snapshot(r.PathValue("location"))
	if err != nil {
		s.writeIntentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type startRequest struct {
	Location string `json:"location"`
	PlayerID string `json:"playerId"`
}

func (s *Server) startTable(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := parseBody(r, &req); err != nil || strings.TrimSpace(req.Location) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "location is required")
		return
	}
	t, err := s.gw.StartTable(r.Context(), req.Location, req.PlayerID)
	if err != nil {
		s.writeIntentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t.Snapshot())
}

type actionRequest struct {
	PlayerID string `json:"playerId"`
	Action   string `json:"action"`
	Amount   int64  `json:"amount,omitempty"`
}

func (s *Server) action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := parseBody(r, &req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "playerId and action are required")
		return
	}
	loc := r.PathValue("location")
	ctx := r.Context()
	resp := map[string]any{"code": gateway.OK.String()}

	switch req.Action {
	case "join":
		role, err := s.gw.Join(ctx, loc, req.PlayerID)
		if err != nil {
			s.writeIntentError(w, err)
			return
		}
		resp["role"] = role.String()
	case "leave":
		closed, err := s.gw.Leave(ctx, loc, req.PlayerID)
		if err != nil {
			s.writeIntentError(w, err)
			return
		}
		resp["closed"] = closed
	case "bet":
		bal, err := s.gw.PlaceBet(ctx, loc, req.PlayerID, req.Amount)
		if err != nil {
			s.writeIntentError(w, err)
			return
		}
		resp["balance"] = bal
	default:
		res, err := s.gw.Act(ctx, loc, req.PlayerID, req.Action)
		if err != nil {
			s.writeIntentError(w, err)
			return
		}
		resp["applied"] = res.Applied
		if res.Applied {
			resp["total"] = res.Total
			resp["status"] = res.Status.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	loc := r.PathValue("location")
	snap, err := s.gw.Snapshot(loc)
	if err != nil {
		s.writeIntentError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := s.bus.Subscribe(loc)
	defer s.bus.Unsubscribe(loc, ch)

	sendSSEEvent(w, flusher, "table_state", feed.TableEvent{Snapshot: snap})
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Closed {
				sendSSEEvent(w, flusher, "table_closed", evt)
				return
			}
			sendSSEEvent(w, flusher, "table_state", evt)
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, evt feed.TableEvent) {
	data, _ := json.Marshal(evt)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
