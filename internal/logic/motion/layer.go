package motion

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cjeanneret/dxlhw/internal/actuator"
	"github.com/cjeanneret/dxlhw/internal/config"
	"github.com/cjeanneret/dxlhw/internal/debug"
	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
	"github.com/cjeanneret/dxlhw/internal/hwiface"
)

// ErrNoActuators is returned when no configured actuator could be initialized.
var ErrNoActuators = errors.New("no actuator initialized")

// Joint is what the layer needs from one actuator.
type Joint interface {
	Name() string
	Controllers() []string
	PresentMode() string
	PrepareSwitch(starting, stopping []hwiface.ControllerInfo) bool
	DoSwitch(starting, stopping []hwiface.ControllerInfo)
	Read(now time.Time, period time.Duration)
	Write(now time.Time, period time.Duration)
	Close()
	Snapshot() actuator.Snapshot
}

// Layer groups the actuators of one robot. It sits between the controller
// manager and the individual servos: switches are accepted only if every
// actuator accepts them, and cycles fan out to all actuators.
type Layer struct {
	joints []Joint
	failed map[string]error
}

// NewLayer initializes every configured actuator on bus. An actuator that
// fails is left out and recorded in Failed; the layer only fails when none
// could be initialized.
func NewLayer(cfg *config.Config, bus dynamixel.Bus, ifaces *hwiface.Interfaces) (*Layer, error) {
	return newLayer(cfg.ActuatorNames(), func(name string) (Joint, error) {
		return actuator.New(name, cfg.Actuators[name], bus, ifaces)
	})
}

func newLayer(names []string, build func(name string) (Joint, error)) (*Layer, error) {
	l := &Layer{failed: make(map[string]error)}
	for _, name := range names {
		j, err := build(name)
		if err != nil {
			debug.Errorf("skipping actuator %q: %v", name, err)
			l.failed[name] = err
			continue
		}
		l.joints = append(l.joints, j)
	}
	if len(l.joints) == 0 {
		return nil, fmt.Errorf("%w (%d configured)", ErrNoActuators, len(names))
	}
	debug.Info("Motion layer ready: %d actuator(s), %d skipped", len(l.joints), len(l.failed))
	return l, nil
}

// Joints returns the initialized actuators.
func (l *Layer) Joints() []Joint { return l.joints }

// Joint returns the actuator called name.
func (l *Layer) Joint(name string) (Joint, bool) {
	for _, j := range l.joints {
		if j.Name() == name {
			return j, true
		}
	}
	return nil, false
}

// Failed returns the initialization error of each skipped actuator.
func (l *Layer) Failed() map[string]error {
	out := make(map[string]error, len(l.failed))
	for k, v := range l.failed {
		out[k] = v
	}
	return out
}

// Controllers lists every controller name known to at least one actuator.
func (l *Layer) Controllers() []string {
	seen := make(map[string]bool)
	var names []string
	for _, j := range l.joints {
		for _, c := range j.Controllers() {
			if !seen[c] {
				seen[c] = true
				names = append(names, c)
			}
		}
	}
	sort.Strings(names)
	return names
}

// PrepareSwitch reports whether every actuator accepts the switch.
// All actuators are asked so that each rejection is logged.
func (l *Layer) PrepareSwitch(starting, stopping []hwiface.ControllerInfo) bool {
	ok := true
	for _, j := range l.joints {
		if !j.PrepareSwitch(starting, stopping) {
			ok = false
		}
	}
	return ok
}

// DoSwitch applies a switch accepted by PrepareSwitch to every actuator.
func (l *Layer) DoSwitch(starting, stopping []hwiface.ControllerInfo) {
	for _, j := range l.joints {
		j.DoSwitch(starting, stopping)
	}
}

func (l *Layer) Read(now time.Time, period time.Duration) {
	for _, j := range l.joints {
		j.Read(now, period)
	}
}

func (l *Layer) Write(now time.Time, period time.Duration) {
	for _, j := range l.joints {
		j.Write(now, period)
	}
}

// Close stops the present mode of every actuator.
func (l *Layer) Close() {
	for _, j := range l.joints {
		j.Close()
	}
}

// Snapshots copies the state of every actuator.
func (l *Layer) Snapshots() []actuator.Snapshot {
	out := make([]actuator.Snapshot, len(l.joints))
	for i, j := range l.joints {
		out[i] = j.Snapshot()
	}
	return out
}
