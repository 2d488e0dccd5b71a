package main

import (
	"testing"

	"github.com/cjeanneret/dxlhw/internal/config"
	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_Unset(t *testing.T) {
	if err := validateCLIOverrides(0, -1); err != nil {
		t.Errorf("unset overrides should be valid, got: %v", err)
	}
}

func TestValidateCLIOverrides_Boundaries(t *testing.T) {
	cases := []struct {
		name  string
		rate  int
		level int
		ok    bool
	}{
		{"rate_min", 1, -1, true},
		{"rate_max", 1000, -1, true},
		{"rate_too_high", 1001, -1, false},
		{"rate_negative", -5, -1, false},
		{"level_zero", 0, 0, true},
		{"level_max", 0, 4, true},
		{"level_too_high", 0, 5, false},
		{"level_below_unset", 0, -2, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCLIOverrides(tc.rate, tc.level)
			if tc.ok && err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	for _, input := range []string{"0", "65536", "-1", "abc", "8080.5"} {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- applyOverrides ----------

func newTestConfig() *config.Config {
	id1, id2, bad := 1, 2, 300
	return &config.Config{
		Bus:     config.BusConfig{Port: "/dev/ttyUSB0", BaudRate: 57600},
		Control: config.ControlConfig{RateHz: 100, DebugLevel: 1},
		Actuators: map[string]config.ActuatorConfig{
			"shoulder": {ID: &id1},
			"elbow":    {ID: &id2},
			"broken":   {},
			"outside":  {ID: &bad},
		},
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := newTestConfig()
	applyOverrides(cfg, 250, 3, true)
	if cfg.Control.RateHz != 250 {
		t.Errorf("rate = %d, want 250", cfg.Control.RateHz)
	}
	if cfg.Control.DebugLevel != 3 {
		t.Errorf("debug level = %d, want 3", cfg.Control.DebugLevel)
	}
	if !cfg.Bus.Mock || !cfg.Power.MockGPIO {
		t.Error("mock flag should enable the mock bus and the mock GPIO")
	}
}

func TestApplyOverrides_UnsetLeavesConfig(t *testing.T) {
	cfg := newTestConfig()
	applyOverrides(cfg, 0, -1, false)
	if cfg.Control.RateHz != 100 || cfg.Control.DebugLevel != 1 {
		t.Errorf("control = %+v, want config values", cfg.Control)
	}
	if cfg.Bus.Mock || cfg.Power.MockGPIO {
		t.Error("mock should stay off")
	}
}

// ---------- bus ----------

func TestNewMockBus_HoldsConfiguredIDs(t *testing.T) {
	bus := newMockBus(newTestConfig())
	for _, id := range []int{1, 2} {
		dev, err := dynamixel.Find(bus, id)
		if err != nil {
			t.Fatalf("Find(%d): %v", id, err)
		}
		if dev.Model() != mockModel || dev.Firmware() != mockFirmware {
			t.Errorf("id %d: model %d firmware %d", id, dev.Model(), dev.Firmware())
		}
	}
	if _, err := dynamixel.Find(bus, 3); err == nil {
		t.Error("id 3 is not configured and should not answer")
	}
}

func TestOpenBus_Mock(t *testing.T) {
	cfg := newTestConfig()
	cfg.Bus.Mock = true
	bus, err := openBus(cfg)
	if err != nil {
		t.Fatalf("openBus: %v", err)
	}
	defer bus.Close()
	if _, ok := bus.(*dynamixel.MockBus); !ok {
		t.Errorf("bus = %T, want *dynamixel.MockBus", bus)
	}
}
