package debug

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (initialization, mode switches, failures)
	LevelLive    = 2 // Live info (rejected switches, commands received)
	LevelVerbose = 3 // Verbose (per-cycle details, item writes)
	LevelTrace   = 4 // Trace (register traffic, GPIO, very low level)
)

var (
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (actuators found, modes started/stopped)
// 2 = live info (switch requests, rejected switches)
// 3 = verbose (register items written by modes, cycle timing)
// 4 = trace (packets, GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
	if level <= LevelOff {
		logger = nil
		return
	}
	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	// gating is done by level; logrus only formats
	logger.SetLevel(logrus.TraceLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// SetOutput redirects log output (e.g. to mirror it into the status stream).
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof(format, args...)
	}
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Warnf(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Info("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Info("═══════════════════════════════════════")
	}
}

// Actuator prints an actuator-scoped message (level 1) with name and id fields.
func Actuator(name string, id int, format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.WithFields(logrus.Fields{"actuator": name, "id": id}).Infof(format, args...)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.WithField("lvl", "live").Infof(format, args...)
	}
}

// Switch prints a controller switch request (level 2).
func Switch(start, stop []string) {
	if level >= LevelLive && logger != nil {
		logger.WithFields(logrus.Fields{"start": start, "stop": stop}).Info("controller switch requested")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debugf("  %s", name)
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.WithFields(logrus.Fields{"pin": pin, "value": value}).Tracef("gpio %s", operation)
	}
}

// Packet prints raw bus traffic (level 4).
func Packet(direction string, data []byte) {
	if level >= LevelTrace && logger != nil {
		logger.WithField("dir", direction).Tracef("% X", data)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Error(err)
	}
}

// Errorf prints a formatted error (level 1+).
func Errorf(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Errorf(format, args...)
	}
}
