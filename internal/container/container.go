package container

import (
	"io"

	"symptomsim/adapters/orthant"
	"symptomsim/adapters/report"
	"symptomsim/adapters/rng"
	"symptomsim/app"
	"symptomsim/internal"
	"symptomsim/internal/config"
	"symptomsim/internal/errors"
	"symptomsim/ports"
)

// Container holds the wired simulation components for one command invocation
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Ports
	RNG       ports.RNGPort
	Estimator ports.OrthantEstimator

	// Services
	Simulation *app.SimulationService
}

// New validates cfg and wires the simulation. Log lines go to logOut at the
// configured level.
func New(cfg *config.Config, logOut io.Writer) (*Container, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = io.Discard
	}

	c := &Container{
		Config: cfg,
		Logger: internal.NewLoggerTo(logOut, internal.ParseLogLevel(cfg.LogLevel)),
		RNG:    rng.NewSeededAdapter(),
	}

	if err := c.initEstimator(); err != nil {
		return nil, err
	}
	if err := c.initSimulation(); err != nil {
		return nil, err
	}

	c.Logger.Debug("container wired: estimator %s, %d worker(s)", c.Estimator.Name(), cfg.Workers)
	return c, nil
}

func (c *Container) initEstimator() error {
	backend, err := orthant.New(c.Config.OrthantSettings())
	if err != nil {
		return errors.Wrap(err, "failed to create orthant estimator")
	}
	c.Estimator = backend
	return nil
}

func (c *Container) initSimulation() error {
	svc, err := app.NewSimulationService(c.Config.Simulation(), c.RNG, c.Estimator, c.Logger.With("simulation"))
	if err != nil {
		return err
	}
	c.Simulation = svc
	return nil
}

// ReportWriter returns the writer for format rendering to out. all selects
// the full combination table where a format supports both views.
func (c *Container) ReportWriter(format string, out io.Writer, all bool) (ports.ReportWriter, error) {
	return report.New(format, out, all)
}
