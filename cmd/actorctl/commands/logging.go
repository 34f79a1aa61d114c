package commands

import (
	"os"

	"github.com/roasbeef/actorcore/internal/actor"
	"github.com/roasbeef/actorcore/internal/build"
	"github.com/roasbeef/actorcore/internal/scheduler"
	"github.com/roasbeef/actorcore/internal/system"
)

// setupLogging wires the subsystem loggers to the console and, with
// --log-dir, to a rotating log file. The flag level wins over the config.
func setupLogging(cfg system.Config) (*build.LogManager, error) {
	var rotation *build.LogRotatorConfig
	if logDir != "" {
		r := build.DefaultLogRotatorConfig(logDir)
		rotation = &r
	}

	m, err := build.NewLogManager(os.Stderr, rotation)
	if err != nil {
		return nil, err
	}

	m.Register(actor.Subsystem, actor.UseLogger)
	m.Register(scheduler.Subsystem, scheduler.UseLogger)
	m.Register(system.Subsystem, system.UseLogger)

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := m.SetLevel(level); err != nil {
		_ = m.Close()
		return nil, err
	}

	return m, nil
}
