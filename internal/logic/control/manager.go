// Package control runs the fixed-rate read/write loop over the actuators and
// applies controller switches and command updates between cycles.
package control

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/dxlhw/internal/actuator"
	"github.com/cjeanneret/dxlhw/internal/debug"
	"github.com/cjeanneret/dxlhw/internal/hwiface"
)

var (
	ErrUnknownController = errors.New("unknown controller")
	ErrUnknownActuator   = errors.New("unknown actuator")
	ErrStopped           = errors.New("control loop not running")
	ErrRejected          = errors.New("switch rejected")
)

// Hardware is the robot-wide actuator surface the loop drives.
type Hardware interface {
	Controllers() []string
	PrepareSwitch(starting, stopping []hwiface.ControllerInfo) bool
	DoSwitch(starting, stopping []hwiface.ControllerInfo)
	Read(now time.Time, period time.Duration)
	Write(now time.Time, period time.Duration)
	Close()
	Snapshots() []actuator.Snapshot
}

// SwitchRequest asks to start and stop controllers by name.
// Strict requests fail if any name is unknown, already running (start) or
// not running (stop); otherwise such names are dropped.
type SwitchRequest struct {
	ID     string   `json:"id,omitempty"`
	Start  []string `json:"start"`
	Stop   []string `json:"stop"`
	Strict bool     `json:"strict"`
}

// SwitchResult reports the outcome of a switch request.
type SwitchResult struct {
	ID       string   `json:"id"`
	Accepted bool     `json:"accepted"`
	Started  []string `json:"started,omitempty"`
	Stopped  []string `json:"stopped,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// CommandUpdate sets commands of one actuator. Nil fields are left alone.
type CommandUpdate struct {
	Actuator string           `json:"-"`
	Position *float64         `json:"position,omitempty"`
	Velocity *float64         `json:"velocity,omitempty"`
	Effort   *float64         `json:"effort,omitempty"`
	Int32    map[string]int32 `json:"int32,omitempty"`
}

// ControllerState is one known controller and whether it runs.
type ControllerState struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// Status is published after every cycle.
type Status struct {
	Cycle     uint64              `json:"cycle"`
	Time      time.Time           `json:"time"`
	Running   []string            `json:"running"`
	Actuators []actuator.Snapshot `json:"actuators"`
}

type switchJob struct {
	req   SwitchRequest
	reply chan SwitchResult
}

// Manager owns the control loop. Only the loop goroutine touches the hardware;
// other goroutines talk to it through Switch and SetCommand.
type Manager struct {
	hw     Hardware
	ifaces *hwiface.Interfaces
	period time.Duration

	known   map[string]bool
	running map[string]bool // loop-owned

	switches chan switchJob
	commands chan CommandUpdate
	done     chan struct{}

	mu        sync.RWMutex
	status    Status
	listeners []func(Status)
	onSwitch  []func(SwitchResult)
	started   bool
}

// NewManager creates a manager running hw every period.
func NewManager(hw Hardware, ifaces *hwiface.Interfaces, period time.Duration) *Manager {
	known := make(map[string]bool)
	for _, c := range hw.Controllers() {
		known[c] = true
	}
	return &Manager{
		hw:       hw,
		ifaces:   ifaces,
		period:   period,
		known:    known,
		running:  make(map[string]bool),
		switches: make(chan switchJob),
		commands: make(chan CommandUpdate, 64),
		done:     make(chan struct{}),
		status:   Status{Running: []string{}, Actuators: hw.Snapshots()},
	}
}

// OnStatus registers fn to be called from the loop after every cycle.
// fn must not block.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// OnSwitch registers fn to be called from the loop with every switch result,
// including results whose requester gave up waiting. fn must not block.
func (m *Manager) OnSwitch(fn func(SwitchResult)) {
	m.mu.Lock()
	m.onSwitch = append(m.onSwitch, fn)
	m.mu.Unlock()
}

// Status returns the last published status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Controllers lists the known controllers with their running flag.
func (m *Manager) Controllers() []ControllerState {
	running := make(map[string]bool)
	for _, name := range m.Status().Running {
		running[name] = true
	}
	out := make([]ControllerState, 0, len(m.known))
	for name := range m.known {
		out = append(out, ControllerState{Name: name, Running: running[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Switch queues req for the loop and waits for its result.
func (m *Manager) Switch(ctx context.Context, req SwitchRequest) (SwitchResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	debug.Switch(req.Start, req.Stop)
	job := switchJob{req: req, reply: make(chan SwitchResult, 1)}
	select {
	case m.switches <- job:
	case <-m.done:
		return SwitchResult{}, ErrStopped
	case <-ctx.Done():
		return SwitchResult{}, ctx.Err()
	}
	select {
	case res := <-job.reply:
		return res, nil
	case <-ctx.Done():
		return SwitchResult{}, ctx.Err()
	}
}

// SetCommand queues a command update, applied at the start of the next write.
func (m *Manager) SetCommand(ctx context.Context, cmd CommandUpdate) error {
	if _, err := m.ifaces.State(cmd.Actuator); err != nil {
		return fmt.Errorf("%w %q", ErrUnknownActuator, cmd.Actuator)
	}
	for item := range cmd.Int32 {
		if _, err := m.ifaces.Int32(hwiface.Int32Command, cmd.Actuator+"/"+item); err != nil {
			return fmt.Errorf("actuator %q: no command channel %q", cmd.Actuator, item)
		}
	}
	select {
	case m.commands <- cmd:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the loop until ctx is cancelled, then stops every present mode.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("control: manager already running")
	}
	m.started = true
	m.mu.Unlock()

	defer close(m.done)
	defer m.hw.Close()

	debug.Info("Control loop running every %v", m.period)
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Info("Control loop stopping")
			return nil
		case now := <-ticker.C:
			m.cycle(now)
		}
	}
}

// cycle runs one read, command, write, switch pass and publishes the status.
func (m *Manager) cycle(now time.Time) {
	m.hw.Read(now, m.period)
	m.drainCommands()
	m.hw.Write(now, m.period)
	m.drainSwitches()
	m.publish(now)
	if debug.IsEnabled(debug.LevelTrace) {
		debug.Trace("cycle %d took %v", m.Status().Cycle, time.Since(now))
	}
}

func (m *Manager) drainCommands() {
	for {
		select {
		case cmd := <-m.commands:
			m.applyCommand(cmd)
		default:
			return
		}
	}
}

func (m *Manager) applyCommand(cmd CommandUpdate) {
	set := func(kind hwiface.Kind, v *float64) {
		if v == nil {
			return
		}
		h, err := m.ifaces.Command(kind, cmd.Actuator)
		if err != nil {
			debug.Error(err)
			return
		}
		*h.Command = *v
	}
	set(hwiface.PositionActuator, cmd.Position)
	set(hwiface.VelocityActuator, cmd.Velocity)
	set(hwiface.EffortActuator, cmd.Effort)
	for item, v := range cmd.Int32 {
		h, err := m.ifaces.Int32(hwiface.Int32Command, cmd.Actuator+"/"+item)
		if err != nil {
			debug.Error(err)
			continue
		}
		*h.Value = v
	}
	debug.Verbose("Command applied to %s", cmd.Actuator)
}

func (m *Manager) drainSwitches() {
	for {
		select {
		case job := <-m.switches:
			res := m.handleSwitch(job.req)
			job.reply <- res
			m.mu.RLock()
			listeners := append(([]func(SwitchResult))(nil), m.onSwitch...)
			m.mu.RUnlock()
			for _, fn := range listeners {
				fn(res)
			}
		default:
			return
		}
	}
}

func (m *Manager) handleSwitch(req SwitchRequest) SwitchResult {
	res := SwitchResult{ID: req.ID}
	start, stop, err := m.filter(req)
	if err != nil {
		res.Error = err.Error()
		debug.Live("Switch %s rejected: %v", req.ID, err)
		return res
	}

	starting, stopping := infos(start), infos(stop)
	if !m.hw.PrepareSwitch(starting, stopping) {
		res.Error = fmt.Sprintf("%v: infeasible for the actuators", ErrRejected)
		debug.Live("Switch %s rejected by the hardware", req.ID)
		return res
	}
	m.hw.DoSwitch(starting, stopping)

	for _, name := range stop {
		delete(m.running, name)
	}
	for _, name := range start {
		m.running[name] = true
	}
	res.Accepted, res.Started, res.Stopped = true, start, stop
	debug.Info("Switch %s applied: started %v, stopped %v", req.ID, start, stop)
	return res
}

// filter validates the names of req against the known and running sets.
// Repeated names count once.
func (m *Manager) filter(req SwitchRequest) (start, stop []string, err error) {
	inStop := make(map[string]bool, len(req.Stop))
	for _, name := range req.Stop {
		inStop[name] = true
	}
	for _, name := range req.Start {
		if inStop[name] {
			return nil, nil, fmt.Errorf("%v: controller %q both started and stopped", ErrRejected, name)
		}
	}

	pick := func(names []string, wantRunning bool) ([]string, error) {
		var out []string
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			switch {
			case !m.known[name]:
				if req.Strict {
					return nil, fmt.Errorf("%w %q", ErrUnknownController, name)
				}
			case m.running[name] != wantRunning:
				if req.Strict {
					state := "not running"
					if m.running[name] {
						state = "already running"
					}
					return nil, fmt.Errorf("%v: controller %q %s", ErrRejected, name, state)
				}
			default:
				out = append(out, name)
			}
		}
		return out, nil
	}
	if start, err = pick(req.Start, false); err != nil {
		return nil, nil, err
	}
	if stop, err = pick(req.Stop, true); err != nil {
		return nil, nil, err
	}
	return start, stop, nil
}

func infos(names []string) []hwiface.ControllerInfo {
	out := make([]hwiface.ControllerInfo, len(names))
	for i, n := range names {
		out[i] = hwiface.ControllerInfo{Name: n}
	}
	return out
}

func (m *Manager) publish(now time.Time) {
	running := make([]string, 0, len(m.running))
	for name := range m.running {
		running = append(running, name)
	}
	sort.Strings(running)

	m.mu.Lock()
	m.status = Status{
		Cycle:     m.status.Cycle + 1,
		Time:      now,
		Running:   running,
		Actuators: m.hw.Snapshots(),
	}
	st := m.status
	listeners := append(([]func(Status))(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}
