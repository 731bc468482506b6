package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"popup-engine/internal/display"
	"popup-engine/internal/page"
	"popup-engine/internal/trigger"
	"popup-engine/internal/visit"
)

type VisitHandler struct {
	Visits *visit.Registry
}

func NewVisitHandler(visits *visit.Registry) *VisitHandler {
	return &VisitHandler{Visits: visits}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type startVisitRequest struct {
	SessionID     string            `json:"session_id"`
	ViewerID      string            `json:"viewer_id"`
	Timezone      string            `json:"timezone"`
	ViewportWidth int               `json:"viewport_width"`
	History       *bool             `json:"history,omitempty"`
	Viewport      *trigger.Viewport `json:"viewport,omitempty"`
}

type visitResponse struct {
	VisitID  string         `json:"visit_id"`
	Compact  bool           `json:"compact"`
	State    string         `json:"state"`
	Commands []page.Command `json:"commands"`
}

type eventRequest struct {
	Type     string                `json:"type"` // "scroll" | "pointer_leave" | "popstate"
	Viewport *trigger.Viewport     `json:"viewport,omitempty"`
	Pointer  *trigger.PointerEvent `json:"pointer,omitempty"`
	State    trigger.HistoryState  `json:"state,omitempty"`
}

func respond(w http.ResponseWriter, status int, v *visit.Visit) {
	cmds := v.Bus.Drain()
	if cmds == nil {
		cmds = []page.Command{}
	}
	writeJSON(w, status, visitResponse{
		VisitID:  v.ID,
		Compact:  v.Compact,
		State:    v.Coord.State().String(),
		Commands: cmds,
	})
}

// StartVisit is the visit-begin boundary signal.
func (h *VisitHandler) StartVisit(w http.ResponseWriter, r *http.Request) {
	var body startVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	history := true
	if body.History != nil {
		history = *body.History
	}
	v, err := h.Visits.Start(r.Context(), visit.StartRequest{
		SessionID:     body.SessionID,
		ViewerID:      body.ViewerID,
		Timezone:      body.Timezone,
		ViewportWidth: body.ViewportWidth,
		History:       history,
		Viewport:      body.Viewport,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not start visit")
		return
	}
	respond(w, http.StatusCreated, v)
}

func (h *VisitHandler) visit(w http.ResponseWriter, r *http.Request) (*visit.Visit, bool) {
	v, err := h.Visits.Get(chi.URLParam(r, "visitID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown visit")
		return nil, false
	}
	return v, true
}

func (h *VisitHandler) Event(w http.ResponseWriter, r *http.Request) {
	v, ok := h.visit(w, r)
	if !ok {
		return
	}
	var ev eventRequest
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	switch ev.Type {
	case "scroll":
		if ev.Viewport == nil {
			writeError(w, http.StatusBadRequest, "scroll event requires viewport")
			return
		}
		v.Bus.Scroll(*ev.Viewport)
	case "pointer_leave":
		if ev.Pointer == nil {
			writeError(w, http.StatusBadRequest, "pointer_leave event requires pointer")
			return
		}
		v.Bus.PointerLeave(*ev.Pointer)
	case "popstate":
		v.Bus.PopState(ev.State)
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	respond(w, http.StatusOK, v)
}

// Commands drains pending commands, e.g. a popup whose delay elapsed.
func (h *VisitHandler) Commands(w http.ResponseWriter, r *http.Request) {
	v, ok := h.visit(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, v)
}

func (h *VisitHandler) Intent(w http.ResponseWriter, r *http.Request) {
	v, ok := h.visit(w, r)
	if !ok {
		return
	}
	var in display.Intent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	switch in.Kind {
	case display.Dismissed:
		v.Slot.Dismiss()
	case display.ActionInvoked, display.Subscribed:
		v.Slot.Handle(r.Context(), in)
	default:
		writeError(w, http.StatusBadRequest, "unknown intent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EndVisit is the visit-end boundary signal.
func (h *VisitHandler) EndVisit(w http.ResponseWriter, r *http.Request) {
	if err := h.Visits.End(chi.URLParam(r, "visitID")); err != nil {
		writeError(w, http.StatusNotFound, "unknown visit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EndSession drops the session's once-per-session records.
func (h *VisitHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.Visits.EndSession(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}
