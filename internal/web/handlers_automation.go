package web

import (
	"errors"
	"net/http"

	"home-hub/internal/automation"
	"home-hub/internal/home"
)

// inlineScriptID is the run target for code posted in the request body.
const inlineScriptID = "_inline"

// automationView adds the engine's VM status to a stored script.
type automationView struct {
	*automation.Script
	automation.ScriptStatus
}

// automationRequest carries create and update bodies. On update, omitted
// fields keep their stored values.
type automationRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Enabled     *bool     `json:"enabled"`
	Tags        *[]string `json:"tags"`
	LuaCode     *string   `json:"lua_code"`
}

func (req *automationRequest) applyTo(sc *automation.Script) {
	if req.Name != nil {
		sc.Meta.Name = *req.Name
	}
	if req.Description != nil {
		sc.Meta.Description = *req.Description
	}
	if req.Enabled != nil {
		sc.Meta.Enabled = *req.Enabled
	}
	if req.Tags != nil {
		sc.Meta.Tags = *req.Tags
	}
	if req.LuaCode != nil {
		sc.LuaCode = *req.LuaCode
	}
}

func (s *Server) handleAPIListAutomations(w http.ResponseWriter, r *http.Request) {
	views := []automationView{}
	if s.scriptMgr != nil {
		scripts, err := s.scriptMgr.List()
		if err != nil {
			s.writeScriptError(w, err)
			return
		}
		for _, sc := range scripts {
			views = append(views, s.viewScript(sc))
		}
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetAutomation(w http.ResponseWriter, r *http.Request) {
	if sc, ok := s.lookupScript(w, r); ok {
		s.writeJSON(w, http.StatusOK, s.viewScript(sc))
	}
}

func (s *Server) handleAPICreateAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	var req automationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name == nil || *req.Name == "" {
		s.writeError(w, &home.ValidationError{Field: "name"})
		return
	}

	sc := &automation.Script{}
	req.applyTo(sc)
	s.storeScript(w, sc, http.StatusCreated)
}

func (s *Server) handleAPIUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScript(w, r)
	if !ok {
		return
	}
	var req automationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name != nil && *req.Name == "" {
		s.writeError(w, &home.ValidationError{Field: "name"})
		return
	}

	req.applyTo(sc)
	s.storeScript(w, sc, http.StatusOK)
}

func (s *Server) handleAPIToggleAutomation(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScript(w, r)
	if !ok {
		return
	}
	sc.Meta.Enabled = !sc.Meta.Enabled
	s.storeScript(w, sc, http.StatusOK)
}

func (s *Server) handleAPIDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.scriptMgr.Delete(id); err != nil {
		s.writeScriptError(w, err)
		return
	}
	if s.autoEngine != nil {
		s.autoEngine.StopScript(id)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIRunAutomation(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "automation engine not available"})
		return
	}

	if r.PathValue("id") == inlineScriptID {
		var req struct {
			LuaCode string `json:"lua_code"`
		}
		if !s.decodeBody(w, r, &req) {
			return
		}
		s.writeJSON(w, http.StatusOK, s.autoEngine.RunLuaCode(req.LuaCode))
		return
	}

	sc, ok := s.lookupScript(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunScript(sc.ID))
}

func (s *Server) automationsReady(w http.ResponseWriter) bool {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "automations not available"})
		return false
	}
	return true
}

func (s *Server) lookupScript(w http.ResponseWriter, r *http.Request) (*automation.Script, bool) {
	if !s.automationsReady(w) {
		return nil, false
	}
	sc, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeScriptError(w, err)
		return nil, false
	}
	return sc, true
}

// storeScript saves sc and brings its VM in line with the enabled flag.
func (s *Server) storeScript(w http.ResponseWriter, sc *automation.Script, status int) {
	saved, err := s.scriptMgr.Save(sc)
	if err != nil {
		s.writeScriptError(w, err)
		return
	}
	if s.autoEngine != nil {
		if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
			s.logger.Warn("script failed to start", "id", saved.ID, "err", err)
		}
	}
	s.writeJSON(w, status, s.viewScript(saved))
}

func (s *Server) viewScript(sc *automation.Script) automationView {
	v := automationView{Script: sc}
	if s.autoEngine != nil {
		v.ScriptStatus = s.autoEngine.Status(sc.ID)
	}
	return v
}

func (s *Server) writeScriptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrScriptNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
	case errors.Is(err, automation.ErrInvalidScriptID):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("script storage failed", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
