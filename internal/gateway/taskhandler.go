package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/gateway/ws"
	"github.com/dohr-michael/taskd/internal/tasks"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list := s.exec.List()
	if owner := events.OwnerFromContext(r.Context()); owner != "" {
		filtered := list[:0]
		for _, t := range list {
			if t.Owner == owner {
				filtered = append(filtered, t)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var params ws.SubmitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, ws.CodeInvalidParams, "invalid body: "+err.Error())
		return
	}
	opts, err := params.TaskOptions()
	if err != nil {
		writeError(w, http.StatusBadRequest, ws.ErrorCode(err), err.Error())
		return
	}
	if opts.Owner == "" {
		opts.Owner = events.OwnerFromContext(r.Context())
	}

	id, err := s.exec.Submit(params.Type, params.Input, opts)
	if err != nil {
		writeError(w, statusFor(err), ws.ErrorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, ws.SubmitResult{TaskID: id})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.exec.Result(id)
	if !ok {
		writeError(w, http.StatusNotFound, ws.CodeNotFound, fmt.Sprintf("task %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.exec.Cancel)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.exec.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.exec.Resume)
}

type priorityBody struct {
	Priority string `json:"priority"`
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request) {
	var body priorityBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ws.CodeInvalidParams, "invalid body: "+err.Error())
		return
	}
	prio, err := tasks.ParsePriority(body.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, ws.CodeInvalidPriority, err.Error())
		return
	}
	s.control(w, r, func(id string) bool {
		return s.exec.UpdatePriority(id, prio)
	})
}

// control applies a state change. A refused change is 404 when the task is
// unknown and 409 when it exists in a state that does not allow it.
func (s *Server) control(w http.ResponseWriter, r *http.Request, apply func(id string) bool) {
	id := chi.URLParam(r, "id")
	if apply(id) {
		writeJSON(w, http.StatusOK, ws.AckResult{Applied: true})
		return
	}
	snap, ok := s.exec.Result(id)
	if !ok {
		writeError(w, http.StatusNotFound, ws.CodeNotFound, fmt.Sprintf("task %s not found", id))
		return
	}
	writeError(w, http.StatusConflict, "invalid_state",
		fmt.Sprintf("task %s is %s", id, snap.Status))
}
