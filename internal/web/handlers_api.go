package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"home-hub/internal/assistant"
	"home-hub/internal/home"
)

func (s *Server) handleAPIRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.hub.Rooms()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, home.Document{Rooms: rooms})
}

type sceneResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleAPILeaveHome(w http.ResponseWriter, r *http.Request) {
	s.runScene(w, home.SceneLeaveHome)
}

func (s *Server) handleAPIArriveHome(w http.ResponseWriter, r *http.Request) {
	s.runScene(w, home.SceneArriveHome)
}

func (s *Server) handleAPIRunScene(w http.ResponseWriter, r *http.Request) {
	s.runScene(w, r.PathValue("name"))
}

func (s *Server) runScene(w http.ResponseWriter, name string) {
	msg, err := s.hub.RunScene(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sceneResponse{Success: true, Message: msg})
}

type deviceActionRequest struct {
	Action string `json:"action"`
	home.Params
}

func (s *Server) handleAPIDeviceAction(w http.ResponseWriter, r *http.Request) {
	var req deviceActionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	dev, err := s.hub.Apply(r.PathValue("room"), r.PathValue("device"), req.Action, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

// legacyActionRequest is the single-device form where "state" names the action.
type legacyActionRequest struct {
	State string `json:"state"`
	home.Params
}

func (s *Server) handleAPILegacyDeviceAction(w http.ResponseWriter, r *http.Request) {
	var req legacyActionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	_, dev, err := s.hub.ApplyAnywhere(r.PathValue("device"), req.State, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleAPICycles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.PendingCycles())
}

func (s *Server) handleAPIFridge(w http.ResponseWriter, r *http.Request) {
	f, err := s.hub.Fridge()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleAPIFridgeAdd(w http.ResponseWriter, r *http.Request) {
	var req home.NewFridgeItem
	if !s.decodeBody(w, r, &req) {
		return
	}

	item, err := s.hub.AddFridgeItem(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

type fridgeRemoveRequest struct {
	ID *int64 `json:"id"`
}

func (s *Server) handleAPIFridgeRemove(w http.ResponseWriter, r *http.Request) {
	var req fridgeRemoveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ID == nil {
		s.writeError(w, &home.ValidationError{Field: "id"})
		return
	}

	if err := s.hub.RemoveFridgeItem(*req.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type notifyRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleAPINotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if _, err := s.hub.Notify(req.Message, req.Type); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPINotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Notifications())
}

type displayRequest struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

func (s *Server) handleAPISetDisplay(w http.ResponseWriter, r *http.Request) {
	var req displayRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if _, err := s.hub.SetDisplayMessage(req.Text, req.Duration); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPIGetDisplay(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.hub.DisplayMessage()
	if !ok {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"text": nil})
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleAPIChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		s.writeError(w, &home.ValidationError{Field: "message"})
		return
	}
	if s.assistant == nil || !s.assistant.Enabled() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "assistant not configured"})
		return
	}

	reply, err := s.assistant.Ask(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// zeroed. It writes a 400 and returns false on malformed input.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps hub and assistant errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *home.ValidationError
	var terr *assistant.ToolError
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, home.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &terr):
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "assistant failed",
			"detail": terr.Detail,
		})
	default:
		s.logger.Error("request failed", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
