// Package loadgen drives a perf.Tracker with a synthetic, rate-limited
// workload.
package loadgen

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ethpandaops/rollstat/internal/clock"
)

// Recorder is the subset of perf.Tracker the generator drives.
type Recorder interface {
	IncrementCounter(name string)
	RecordDuration(name string, startTicks, endTicks int64)
	Clock() clock.Clock
}

// Config configures the load generator.
type Config struct {
	// Enabled runs the generator alongside the agent.
	Enabled bool `yaml:"enabled"`

	// Workers is the number of concurrent recording goroutines.
	// Defaults to 4.
	Workers int `yaml:"workers"`

	// Rate is the total operations per second across all workers.
	// Defaults to 1000.
	Rate float64 `yaml:"rate"`

	// Burst is the limiter burst size. Defaults to Workers.
	Burst int `yaml:"burst"`

	// Names are the operation names to spread load across.
	// Defaults to [query, write].
	Names []string `yaml:"names"`

	// MaxDuration is the upper bound of generated durations.
	// Defaults to 250ms.
	MaxDuration time.Duration `yaml:"max_duration"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}

	if c.Rate <= 0 {
		c.Rate = 1000
	}

	if c.Burst <= 0 {
		c.Burst = c.Workers
	}

	if len(c.Names) == 0 {
		c.Names = []string{"query", "write"}
	}

	if c.MaxDuration <= 0 {
		c.MaxDuration = 250 * time.Millisecond
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	for _, n := range c.Names {
		if n == "" {
			return errors.New("loadgen.names must not contain empty names")
		}
	}

	return nil
}

// OpFunc is notified of every generated operation.
type OpFunc func(kind string)

// Generator issues synthetic operations against a Recorder.
type Generator struct {
	log     logrus.FieldLogger
	cfg     Config
	rec     Recorder
	limiter *rate.Limiter
	onOp    OpFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Generator. onOp may be nil.
func New(log logrus.FieldLogger, cfg Config, rec Recorder, onOp OpFunc) *Generator {
	cfg.ApplyDefaults()

	if onOp == nil {
		onOp = func(string) {}
	}

	return &Generator{
		log:     log.WithField("component", "loadgen"),
		cfg:     cfg,
		rec:     rec,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		onOp:    onOp,
	}
}

// Start launches the workers. They run until ctx is done or Stop is
// called.
func (g *Generator) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)

	for i := range g.cfg.Workers {
		g.wg.Add(1)

		go g.work(ctx, uint64(i))
	}

	g.log.WithFields(logrus.Fields{
		"workers": g.cfg.Workers,
		"rate":    g.cfg.Rate,
		"names":   g.cfg.Names,
	}).Info("Load generator started")
}

// Stop cancels the workers and waits for them to exit.
func (g *Generator) Stop() {
	if g.cancel != nil {
		g.cancel()
	}

	g.wg.Wait()
}

func (g *Generator) work(ctx context.Context, seed uint64) {
	defer g.wg.Done()

	rng := rand.New(rand.NewPCG(seed, uint64(time.Now().UnixNano())))

	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return
		}

		g.Step(rng)
	}
}

// Step issues one operation: a counter increment and a duration ending
// now.
func (g *Generator) Step(rng *rand.Rand) {
	clk := g.rec.Clock()
	name := g.cfg.Names[rng.IntN(len(g.cfg.Names))]

	// Skewed towards short durations with a long tail.
	frac := rng.Float64()
	d := time.Duration(frac * frac * frac * float64(g.cfg.MaxDuration))

	end := clk.Now()
	start := end - clock.Ticks(clk, d)

	g.rec.IncrementCounter("ops")
	g.rec.RecordDuration(name, start, end)

	g.onOp(name)
}
