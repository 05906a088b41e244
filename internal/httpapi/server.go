// Package httpapi exposes a pump-confined key/value store over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Swind/go-confined-pump/core"
	"github.com/Swind/go-confined-pump/store"
)

const maxBodyBytes = 1 << 20

type Server struct {
	pump    *core.Pump[store.KV]
	logger  *zap.Logger
	timeout time.Duration
}

func NewServer(pump *core.Pump[store.KV], logger *zap.Logger, timeout time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Server{pump: pump, logger: logger, timeout: timeout}
}

type recordBody struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

type keysBody struct {
	Keys []string `json:"keys"`
}

type statsBody struct {
	Stats  core.PumpStats        `json:"stats"`
	Recent []core.WorkItemRecord `json:"recent"`
}

func (s *Server) invoke(r *http.Request, action core.Action[store.KV]) error {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	return s.pump.InvokeContext(ctx, action)
}

func (s *Server) ListKeys(w http.ResponseWriter, r *http.Request) {
	var keys []string
	err := s.invoke(r, func(_ context.Context, kv store.KV) error {
		var err error
		keys, err = kv.Keys()
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keysBody{Keys: keys})
}

func (s *Server) GetRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var value []byte
	err := s.invoke(r, func(_ context.Context, kv store.KV) error {
		var err error
		value, err = kv.Get(key)
		return err
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordBody{Key: key, Value: string(value)})
}

// PutRecord stores the body's value. With ?async=true the write is queued
// fire-and-forget and the response is 202.
func (s *Server) PutRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body recordBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	value := []byte(body.Value)
	put := func(_ context.Context, kv store.KV) error {
		return kv.Put(key, value)
	}

	if r.URL.Query().Get("async") == "true" {
		if err := s.pump.BeginInvoke(put); err != nil {
			s.writeFailure(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := s.invoke(r, put); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := s.invoke(r, func(_ context.Context, kv store.KV) error {
		return kv.Delete(key)
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) BeginTx(w http.ResponseWriter, r *http.Request) {
	s.writeTxResult(w, r, s.pump.BeginTransaction())
}

func (s *Server) CommitTx(w http.ResponseWriter, r *http.Request) {
	s.writeTxResult(w, r, s.pump.CommitTransaction())
}

func (s *Server) RollbackTx(w http.ResponseWriter, r *http.Request) {
	s.writeTxResult(w, r, s.pump.RollbackTransaction())
}

func (s *Server) writeTxResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsBody{
		Stats:  s.pump.Stats(),
		Recent: s.pump.RecentItems(20),
	})
}

// Ready waits for the queue ahead of it to drain.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.pump.WaitIdle(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "pump not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rid, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Error("request failed", zap.Error(err), zap.String("request_id", rid))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmptyKey), errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAlreadyInTransaction), errors.Is(err, core.ErrNoActiveTransaction),
		errors.Is(err, store.ErrTransactionOpen):
		return http.StatusConflict
	case errors.Is(err, core.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}
