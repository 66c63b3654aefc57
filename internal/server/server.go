// Package server exposes the backend API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/internal/roster"
	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap"
)

// Backend is what the server serves: the remote API plus the roster.
type Backend interface {
	backend.API
	roster.Provider
}

type Server struct {
	api    Backend
	logger *zap.Logger
	server *http.Server
}

func NewServer(api Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{api: api, logger: logger}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/members", s.handleListMembers)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Patch("/{id}", s.handleUpdateSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/messages", s.handleSendMessage)
		})

		r.Route("/goals/{id}", func(r chi.Router) {
			r.Post("/tasks", s.handleCreateTask)
			r.Post("/approve", s.handleApproveGoal)
		})

		r.Route("/tasks/{id}", func(r chi.Router) {
			r.Patch("/", s.handleUpdateTask)
			r.Delete("/", s.handleDeleteTask)
			r.Put("/assignee", s.handleAssignTask)
		})
	})
	return r
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type titleRequest struct {
	Title string `json:"title"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type assignRequest struct {
	MemberID string `json:"member_id"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.api.ListMembers(r.Context())
	s.respond(w, http.StatusOK, members, err)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.api.ListSessions(r.Context())
	s.respond(w, http.StatusOK, sessions, err)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.api.CreateSession(r.Context(), req.Title)
	s.respond(w, http.StatusCreated, session, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.api.GetSession(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, http.StatusOK, session, err)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.api.UpdateSessionTitle(r.Context(), chi.URLParam(r, "id"), req.Title)
	s.respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.api.DeleteSession(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exchange, err := s.api.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Text)
	s.respond(w, http.StatusCreated, exchange, err)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in models.TaskInput
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := s.api.CreateTask(r.Context(), chi.URLParam(r, "id"), in)
	s.respond(w, http.StatusCreated, task, err)
}

func (s *Server) handleApproveGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.api.ApproveGoal(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, http.StatusOK, goal, err)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch models.TaskPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	task, err := s.api.UpdateTask(r.Context(), chi.URLParam(r, "id"), patch)
	s.respond(w, http.StatusOK, task, err)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	err := s.api.DeleteTask(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.api.AssignTask(r.Context(), chi.URLParam(r, "id"), req.MemberID)
	s.respond(w, http.StatusOK, task, err)
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		body := ErrorBody{Error: err.Error()}
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			status = http.StatusBadRequest
			body.Field, body.Reason = verr.Field, verr.Reason
		case errors.Is(err, backend.ErrConflict):
			status = http.StatusConflict
		default:
			status = http.StatusInternalServerError
			s.logger.Error("request failed", zap.Error(err))
		}
		writeJSON(w, status, body)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
