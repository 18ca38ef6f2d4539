package gateway

import (
	"net/http"

	"github.com/soyeahso/parley/internal/practice"
	"github.com/soyeahso/parley/internal/version"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /sessions", s.handleStartSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /sessions/{id}/turns", s.handleHistory)
	mux.HandleFunc("POST /sessions/{id}/turns", s.handleSubmitTurn)
	mux.HandleFunc("POST /sessions/{id}/end", s.handleEndSession)

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the WebSocket RPC methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("session.start", s.rpcSessionStart)
	s.Handle("session.get", s.rpcSessionGet)
	s.Handle("session.history", s.rpcSessionHistory)
	s.Handle("turn.submit", s.rpcTurnSubmit)
	s.Handle("session.end", s.rpcSessionEnd)
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) rpcHealth(rc *RequestContext) {
	build := version.Get()
	rc.Respond(HealthResponse{
		Status:  "ok",
		Build:   &build,
		Clients: s.clients.Count(),
		Uptime:  s.uptime(),
	})
}

func (s *Server) rpcSessionStart(rc *RequestContext) {
	var p practice.StartRequest
	if err := rc.Params(&p); err != nil {
		rc.Fail(err)
		return
	}
	sess, err := s.practice.StartSession(rc.Ctx, p)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Client.Watch(sess.ID)
	rc.Respond(sess)
}

func (s *Server) rpcSessionGet(rc *RequestContext) {
	id, ok := sessionID(rc)
	if !ok {
		return
	}
	sess, err := s.practice.Session(rc.Ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(sess)
}

func (s *Server) rpcSessionHistory(rc *RequestContext) {
	id, ok := sessionID(rc)
	if !ok {
		return
	}
	turns, err := s.practice.History(rc.Ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"turns": turns})
}

func (s *Server) rpcTurnSubmit(rc *RequestContext) {
	var p TurnRequest
	if err := rc.Params(&p); err != nil {
		rc.Fail(err)
		return
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return
	}
	rc.Client.Watch(p.SessionID)
	turn, err := s.practice.SubmitTurn(rc.Ctx, p.SessionID, p.UserInput)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(turn)
}

func (s *Server) rpcSessionEnd(rc *RequestContext) {
	id, ok := sessionID(rc)
	if !ok {
		return
	}
	rc.Client.Watch(id)
	fb, err := s.practice.EndSessionFeedback(rc.Ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(fb)
}

// sessionID extracts the sessionId param, answering the request itself
// when it is missing.
func sessionID(rc *RequestContext) (string, bool) {
	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(err)
		return "", false
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return "", false
	}
	return p.SessionID, true
}
