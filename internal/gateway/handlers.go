package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/parley/internal/practice"
	"github.com/soyeahso/parley/internal/version"
)

// maxBodyBytes bounds HTTP request bodies.
const maxBodyBytes = 64 << 10

// HealthResponse is returned by health endpoints. The HTTP endpoint only
// reports status; the RPC method adds build and connection details.
type HealthResponse struct {
	Status  string             `json:"status"`
	Build   *version.BuildInfo `json:"build,omitempty"`
	Clients int                `json:"clients,omitempty"`
	Uptime  string             `json:"uptime,omitempty"`
}

// TurnRequest is the body of a turn submission.
type TurnRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	UserInput string `json:"userInput"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req practice.StartRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.practice.StartSession(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.practice.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.practice.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	turn, err := s.practice.SubmitTurn(r.Context(), r.PathValue("id"), req.UserInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	fb, err := s.practice.EndSessionFeedback(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := errorCode(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("requestId", RequestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	shape := errorShape(err)
	writeJSON(w, status, map[string]any{"error": shape})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	return nil
}

// RequestHandler processes an RPC request frame.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything an RPC handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response with an explicit code.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Fail sends the error response matching err.
func (rc *RequestContext) Fail(err error) {
	shape := errorShape(err)
	if shape.Code == "internal_error" {
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
	}
	rc.Client.RespondError(rc.Frame.ID, shape)
}

// Params unmarshals the request params into target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	if err := json.Unmarshal(rc.Frame.Params, target); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	return nil
}

func (s *Server) uptime() string {
	if s.startedAt.IsZero() {
		return ""
	}
	return time.Since(s.startedAt).Round(time.Second).String()
}
