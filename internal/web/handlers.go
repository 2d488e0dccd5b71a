package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/cjeanneret/dxlhw/internal/debug"
	"github.com/cjeanneret/dxlhw/internal/logic/control"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 64 << 10

// switchTimeout bounds how long a request waits for the control loop.
const switchTimeout = 2 * time.Second

// Controller is the control loop as seen from HTTP. *control.Manager implements it.
type Controller interface {
	Status() control.Status
	Controllers() []control.ControllerState
	Switch(ctx context.Context, req control.SwitchRequest) (control.SwitchResult, error)
	SetCommand(ctx context.Context, cmd control.CommandUpdate) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Control     Controller
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, ctrl Controller) *Handlers {
	return &Handlers{Broadcaster: broadcaster, Control: ctrl}
}

type errResponse struct {
	Error string `json:"error"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errResponse{Error: msg})
}

// HandleActuators handles GET /actuators.
func (h *Handlers) HandleActuators(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.Control.Status().Actuators)
}

// HandleActuator handles GET /actuators/{name}.
func (h *Handlers) HandleActuator(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, a := range h.Control.Status().Actuators {
		if a.Name == name {
			render.JSON(w, r, a)
			return
		}
	}
	renderError(w, r, http.StatusNotFound, "unknown actuator "+name)
}

// HandleCommand handles PUT /actuators/{name}/command.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd control.CommandUpdate
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := render.DecodeJSON(r.Body, &cmd); err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	cmd.Actuator = chi.URLParam(r, "name")
	if cmd.Position == nil && cmd.Velocity == nil && cmd.Effort == nil && len(cmd.Int32) == 0 {
		renderError(w, r, http.StatusBadRequest, "no command given")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), switchTimeout)
	defer cancel()
	if err := h.Control.SetCommand(ctx, cmd); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, control.ErrUnknownActuator):
			status = http.StatusNotFound
		case errors.Is(err, control.ErrStopped), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		renderError(w, r, status, err.Error())
		return
	}
	debug.Live("Command queued for %s", cmd.Actuator)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "queued"})
}

// HandleControllers handles GET /controllers.
func (h *Handlers) HandleControllers(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.Control.Controllers())
}

// HandleSwitch handles POST /controllers/switch.
func (h *Handlers) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	var req control.SwitchRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Start) == 0 && len(req.Stop) == 0 {
		renderError(w, r, http.StatusBadRequest, "nothing to start or stop")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), switchTimeout)
	defer cancel()
	// A timeout here does not undo a switch the loop already took; its
	// result still reaches the stream through SwitchPublisher.
	res, err := h.Control.Switch(ctx, req)
	if err != nil {
		renderError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !res.Accepted {
		render.Status(r, http.StatusConflict)
	}
	render.JSON(w, r, res)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
