package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weisyn/collection-sdk-go/services/event"
)

// QuantityResponse 事件数量
type QuantityResponse struct {
	Event    event.Kind `json:"event"`
	Quantity uint64     `json:"quantity"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) routes() {
	r := s.router

	// 未知路由与非 GET 请求一律 404
	notFound := func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "not found", http.StatusNotFound)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	// GET /event/collection_created/quantity
	// GET /event/collection_created?index=N
	// GET /event/token_minted/quantity
	// GET /event/token_minted?index=N
	r.Route("/event/{kind}", func(r chi.Router) {
		r.Get("/", s.handleEvent)
		r.Get("/quantity", s.handleQuantity)
	})

	r.Get("/health", s.handleHealth)
	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics.Handler())
	}
}

func (s *Server) handleQuantity(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	n, err := s.events.Quantity(kind)
	if err != nil {
		s.logError("read event quantity failed", "event", kind, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, QuantityResponse{Event: kind, Quantity: n})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	indexStr := r.URL.Query().Get("index")
	if indexStr == "" {
		writeError(w, "missing query parameter index", http.StatusBadRequest)
		return
	}
	index, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		writeError(w, "invalid index", http.StatusBadRequest)
		return
	}

	rec, err := s.events.GetEvent(kind, index)
	if errors.Is(err, event.ErrEventNotFound) {
		writeError(w, fmt.Sprintf("there is no %s event with index %d", kind, index), http.StatusNotFound)
		return
	}
	if err != nil {
		s.logError("read event failed", "event", kind, "index", index, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// kindParam 解析路径中的事件类型；未知类型按未知路由处理
func kindParam(w http.ResponseWriter, r *http.Request) (event.Kind, bool) {
	kind, err := event.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, "not found", http.StatusNotFound)
		return "", false
	}
	return kind, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
