package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/dxlhw/internal/actuator"
	"github.com/cjeanneret/dxlhw/internal/logic/control"
)

type fakeControl struct {
	status   control.Status
	accept   bool
	switches []control.SwitchRequest
	commands []control.CommandUpdate
	cmdErr   error
	swErr    error
}

func (f *fakeControl) Status() control.Status { return f.status }

func (f *fakeControl) Controllers() []control.ControllerState {
	return []control.ControllerState{{Name: "pos", Running: true}, {Name: "vel"}}
}

func (f *fakeControl) Switch(_ context.Context, req control.SwitchRequest) (control.SwitchResult, error) {
	f.switches = append(f.switches, req)
	if f.swErr != nil {
		return control.SwitchResult{}, f.swErr
	}
	res := control.SwitchResult{ID: req.ID, Accepted: f.accept}
	if f.accept {
		res.Started, res.Stopped = req.Start, req.Stop
	} else {
		res.Error = "switch rejected"
	}
	return res, nil
}

func (f *fakeControl) SetCommand(_ context.Context, cmd control.CommandUpdate) error {
	if f.cmdErr != nil {
		return f.cmdErr
	}
	f.commands = append(f.commands, cmd)
	return nil
}

var _ Controller = (*control.Manager)(nil)

func newTestServer(ctrl *fakeControl) (*StatusBroadcaster, http.Handler) {
	b := NewStatusBroadcaster()
	return b, NewServer(":0", b, ctrl).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleActuators(t *testing.T) {
	ctrl := &fakeControl{status: control.Status{Actuators: []actuator.Snapshot{
		{Name: "shoulder", ID: 1, Mode: actuator.KindVelocity},
		{Name: "elbow", ID: 2},
	}}}
	_, h := newTestServer(ctrl)

	rec := do(t, h, http.MethodGet, "/actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []actuator.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 2)

	rec = do(t, h, http.MethodGet, "/actuators/shoulder", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one actuator.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&one))
	assert.Equal(t, actuator.KindVelocity, one.Mode)

	rec = do(t, h, http.MethodGet, "/actuators/wrist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown actuator")
}

func TestHandleCommand(t *testing.T) {
	ctrl := &fakeControl{}
	_, h := newTestServer(ctrl)

	rec := do(t, h, http.MethodPut, "/actuators/shoulder/command", `{"velocity":1.5,"int32":{"LED":1}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, ctrl.commands, 1)
	cmd := ctrl.commands[0]
	assert.Equal(t, "shoulder", cmd.Actuator)
	require.NotNil(t, cmd.Velocity)
	assert.Equal(t, 1.5, *cmd.Velocity)
	assert.Nil(t, cmd.Position)
	assert.Equal(t, map[string]int32{"LED": 1}, cmd.Int32)
}

func TestHandleCommand_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"invalid json", `{"velocity":`, nil, http.StatusBadRequest},
		{"empty", `{}`, nil, http.StatusBadRequest},
		{"unknown actuator", `{"position":1}`, fmt.Errorf("%w %q", control.ErrUnknownActuator, "ghost"), http.StatusNotFound},
		{"unknown channel", `{"int32":{"Goal_PWM":1}}`, fmt.Errorf("actuator %q: no command channel", "ghost"), http.StatusBadRequest},
		{"stopped", `{"effort":0.1}`, control.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := &fakeControl{cmdErr: tc.err}
			_, h := newTestServer(ctrl)
			rec := do(t, h, http.MethodPut, "/actuators/ghost/command", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Empty(t, ctrl.commands)
		})
	}
}

func TestHandleCommand_BodyTooLarge(t *testing.T) {
	_, h := newTestServer(&fakeControl{})
	body := `{"int32":{"x":1},"pad":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	rec := do(t, h, http.MethodPut, "/actuators/j/command", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleControllers(t *testing.T) {
	_, h := newTestServer(&fakeControl{})
	rec := do(t, h, http.MethodGet, "/controllers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []control.ControllerState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, []control.ControllerState{{Name: "pos", Running: true}, {Name: "vel"}}, list)
}

func TestHandleSwitch(t *testing.T) {
	ctrl := &fakeControl{accept: true}
	_, h := newTestServer(ctrl)

	rec := do(t, h, http.MethodPost, "/controllers/switch", `{"start":["vel"],"stop":["pos"],"strict":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res control.SwitchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.Accepted)
	assert.Equal(t, []string{"vel"}, res.Started)
	_, err := uuid.Parse(res.ID)
	assert.NoError(t, err, "request id is generated")

	require.Len(t, ctrl.switches, 1)
	assert.True(t, ctrl.switches[0].Strict)
}

func TestHandleSwitch_KeepsClientID(t *testing.T) {
	ctrl := &fakeControl{accept: true}
	_, h := newTestServer(ctrl)
	rec := do(t, h, http.MethodPost, "/controllers/switch", `{"id":"req-7","start":["vel"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-7", ctrl.switches[0].ID)
}

func TestHandleSwitch_Errors(t *testing.T) {
	cases := []struct {
		name   string
		ctrl   *fakeControl
		body   string
		status int
	}{
		{"rejected", &fakeControl{accept: false}, `{"start":["pos","vel"]}`, http.StatusConflict},
		{"invalid json", &fakeControl{}, `[`, http.StatusBadRequest},
		{"empty", &fakeControl{}, `{"start":[],"stop":[]}`, http.StatusBadRequest},
		{"loop stopped", &fakeControl{swErr: control.ErrStopped}, `{"start":["vel"]}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, h := newTestServer(tc.ctrl)
			rec := do(t, h, http.MethodPost, "/controllers/switch", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	_, h := newTestServer(&fakeControl{})
	rec := do(t, h, http.MethodGet, "/controllers/switch", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStatusStream(t *testing.T) {
	b, h := newTestServer(&fakeControl{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, time.Millisecond)
	b.Publish(EventStatus, control.Status{Cycle: 9})

	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var evt StatusEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
	assert.Equal(t, EventStatus, evt.Type)
	assert.Equal(t, float64(9), evt.Data.(map[string]interface{})["cycle"])
}
