package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cjeanneret/dxlhw/internal/config"
	"github.com/cjeanneret/dxlhw/internal/debug"
	"github.com/cjeanneret/dxlhw/internal/hw/dynamixel"
	"github.com/cjeanneret/dxlhw/internal/hw/gpio"
	"github.com/cjeanneret/dxlhw/internal/hwiface"
	"github.com/cjeanneret/dxlhw/internal/logic/control"
	"github.com/cjeanneret/dxlhw/internal/logic/motion"
	"github.com/cjeanneret/dxlhw/internal/web"
)

// Simulated servos report an XM430-W350 on a recent firmware.
const (
	mockModel    = 1020
	mockFirmware = 45
)

// statusInterval throttles status snapshots pushed to SSE clients.
const statusInterval = 100 * time.Millisecond

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("loading .env failed: %v", err)
	}

	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	rateHz := flag.Int("rate_hz", 0, "override control loop rate in Hz (1-1000)")
	debugLevel := flag.Int("debug_level", -1, "override debug level (0-4)")
	mock := flag.Bool("mock", false, "simulate the servo bus and the GPIO")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	if err := validateCLIOverrides(*rateHz, *debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	applyOverrides(cfg, *rateHz, *debugLevel, *mock)

	debug.Init(cfg.Control.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Control.DebugLevel)
	debug.Value("Rate (Hz)", cfg.Control.RateHz)
	debug.PrintStruct("Bus config", cfg.Bus)
	debug.PrintStruct("Power config", cfg.Power)

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	debug.Step(1, "Initializing GPIO driver")
	debug.Value("Mock GPIO", cfg.Power.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Power.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	if cfg.Power.EnablePin > 0 {
		rail, err := gpio.NewPowerRail(gpioDriver, cfg.Power.EnablePin)
		if err != nil {
			log.Fatalf("init power rail failed: %v", err)
		}
		if err := rail.On(gpio.PowerSettle); err != nil {
			log.Fatalf("servo power on failed: %v", err)
		}
		if on, err := rail.IsOn(); err != nil || !on {
			log.Fatalf("servo power rail on pin %d did not switch on (err: %v)", cfg.Power.EnablePin, err)
		}
		defer func() {
			if err := rail.Off(); err != nil {
				log.Printf("servo power off failed: %v", err)
			}
		}()
	}

	debug.Step(2, "Opening servo bus")
	bus, err := openBus(cfg)
	if err != nil {
		log.Fatalf("open bus failed: %v", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Printf("closing bus failed: %v", err)
		}
	}()

	debug.Step(3, "Initializing actuators")
	ifaces := hwiface.NewInterfaces()
	layer, err := motion.NewLayer(cfg, bus, ifaces)
	if err != nil {
		log.Fatalf("init actuators failed: %v", err)
	}
	for name, ferr := range layer.Failed() {
		debug.Warn("Actuator %s disabled: %v", name, ferr)
	}
	debug.Summary(fmt.Sprintf("%d actuator(s) ready, %d failed", len(layer.Joints()), len(layer.Failed())))

	manager := control.NewManager(layer, ifaces, cfg.Period())

	if port := webPort.port(); port > 0 {
		manager.OnStatus(web.StatusPublisher(broadcaster, statusInterval))
		manager.OnSwitch(web.SwitchPublisher(broadcaster))
		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, manager)
		go func() {
			if err := srv.Run(ctx); err != nil {
				debug.Errorf("web server: %v", err)
				cancel()
			}
		}()
	}

	debug.Section("Control loop")
	if err := manager.Run(ctx); err != nil {
		log.Fatalf("control loop: %v", err)
	}
	if broadcaster != nil {
		broadcaster.BroadcastMsg("control loop stopped, actuators released")
	}
	debug.Summary("Shutdown complete")
}

// openBus returns the serial client, or a simulated chain holding every
// configured id when bus.mock is set.
func openBus(cfg *config.Config) (dynamixel.Bus, error) {
	if cfg.Bus.Mock {
		return newMockBus(cfg), nil
	}
	debug.Value("Port", cfg.Bus.Port)
	debug.Value("Baud rate", cfg.Bus.BaudRate)
	return dynamixel.OpenSerial(dynamixel.SerialConfig{
		Port:     cfg.Bus.Port,
		BaudRate: cfg.Bus.BaudRate,
		Timeout:  cfg.BusTimeout(),
	})
}

func newMockBus(cfg *config.Config) *dynamixel.MockBus {
	bus := dynamixel.NewMockBus()
	for _, name := range cfg.ActuatorNames() {
		a := cfg.Actuators[name]
		if a.ID == nil || *a.ID < 0 || *a.ID > int(dynamixel.MaxID) {
			continue
		}
		bus.AddServo(uint8(*a.ID), mockModel, mockFirmware)
	}
	return bus
}

// validateCLIOverrides checks overrides that are set. rate 0 and level -1 mean "use config".
func validateCLIOverrides(rateHz, debugLevel int) error {
	if rateHz != 0 && (rateHz < 1 || rateHz > 1000) {
		return fmt.Errorf("rate_hz must be between 1 and 1000, got %d", rateHz)
	}
	if debugLevel != -1 && (debugLevel < 0 || debugLevel > 4) {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", debugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the CLI overrides that are set.
func applyOverrides(cfg *config.Config, rateHz, debugLevel int, mock bool) {
	if rateHz > 0 {
		cfg.Control.RateHz = rateHz
	}
	if debugLevel >= 0 {
		cfg.Control.DebugLevel = debugLevel
	}
	if mock {
		cfg.Bus.Mock = true
		cfg.Power.MockGPIO = true
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
