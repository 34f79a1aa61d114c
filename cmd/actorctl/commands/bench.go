package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/roasbeef/actorcore/internal/actor"
	"github.com/roasbeef/actorcore/internal/actorutil"
	"github.com/roasbeef/actorcore/internal/behavior"
	"github.com/roasbeef/actorcore/internal/mailbox"
	"github.com/roasbeef/actorcore/internal/message"
	"github.com/roasbeef/actorcore/internal/metrics"
	"github.com/roasbeef/actorcore/internal/system"
	"github.com/spf13/cobra"
)

const (
	strategyEvent = "event"
	strategyFiber = "fiber"
)

// errUnknownStrategy is returned for --strategy values other than event and
// fiber.
var errUnknownStrategy = errors.New("unknown strategy")

var (
	benchStrategy    string
	benchPairs       int
	benchServers     int
	benchRounds      int
	benchWorkers     int
	benchMetricsAddr string
	benchTimeout     time.Duration
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a ping-pong benchmark",
	Long: `Run request/response ping-pong between pairs of actors.

Every pair consists of an event-based server and a client using the chosen
strategy. The client sends one request at a time and waits for its answer.
With --servers, the clients share a round-robin pool of that many servers
instead.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(
		&benchStrategy, "strategy", strategyEvent,
		"Client strategy: event or fiber",
	)
	benchCmd.Flags().IntVar(
		&benchPairs, "pairs", 8, "Number of client/server pairs",
	)
	benchCmd.Flags().IntVar(
		&benchServers, "servers", 0,
		"Share a pool of this many servers (default: one per pair)",
	)
	benchCmd.Flags().IntVar(
		&benchRounds, "rounds", 10000, "Requests per client",
	)
	benchCmd.Flags().IntVar(
		&benchWorkers, "workers", 0,
		"Scheduler workers (default: from config)",
	)
	benchCmd.Flags().StringVar(
		&benchMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9090",
	)
	benchCmd.Flags().DurationVar(
		&benchTimeout, "timeout", time.Minute,
		"Abort the benchmark after this duration",
	)
}

// benchOptions describes one benchmark run.
type benchOptions struct {
	strategy string
	pairs    int
	servers  int
	rounds   int
	timeout  time.Duration
}

// benchResult is the outcome of a benchmark run.
type benchResult struct {
	messages int
	elapsed  time.Duration
}

// rate returns the number of messages per second.
func (r benchResult) rate() float64 {
	if r.elapsed <= 0 {
		return 0
	}

	return float64(r.messages) / r.elapsed.Seconds()
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg := system.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = system.LoadConfig(configPath)
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = benchWorkers
	}

	logs, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logs.Close()

	var opts []system.Option
	if benchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		recorder, err := metrics.NewPrometheus(reg)
		if err != nil {
			return err
		}
		opts = append(opts, system.WithMetrics(recorder))

		stop, err := serveMetrics(benchMetricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	sys, err := system.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer sys.Shutdown(context.Background())

	res, err := bench(cmd.Context(), sys, benchOptions{
		strategy: benchStrategy,
		pairs:    benchPairs,
		servers:  benchServers,
		rounds:   benchRounds,
		timeout:  benchTimeout,
	})
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), benchStrategy, cfg.Workers, res)

	return nil
}

// serveMetrics serves the registry over HTTP until stop is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = srv.Serve(lis)
	}()

	return func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), time.Second,
		)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printResult(w io.Writer, strategy string, workers int,
	res benchResult) {

	fmt.Fprintf(w, "strategy=%s workers=%d messages=%d elapsed=%v "+
		"rate=%.0f msg/s\n", strategy, workers, res.messages,
		res.elapsed.Round(time.Millisecond), res.rate())
}

// pong answers every int with its successor.
func pong(*actor.EventBased) *behavior.Behavior {
	return behavior.New(behavior.On1(
		func(_ context.Context, n int) fn.Result[*message.Message] {
			return behavior.Reply(n + 1)
		},
	))
}

// bench runs the ping-pong pairs and waits for every client to finish.
func bench(ctx context.Context, sys *system.System,
	opts benchOptions) (benchResult, error) {

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	spawnClient, err := clientSpawner(sys, opts)
	if err != nil {
		return benchResult{}, err
	}

	servers, err := spawnServers(ctx, sys, opts)
	if err != nil {
		return benchResult{}, err
	}

	start := time.Now()

	clients := make([]<-chan struct{}, 0, opts.pairs)
	for i := 0; i < opts.pairs; i++ {
		done, err := spawnClient(i, servers(i))
		if err != nil {
			return benchResult{}, err
		}
		clients = append(clients, done)
	}

	for _, done := range clients {
		select {
		case <-done:
		case <-ctx.Done():
			return benchResult{}, fmt.Errorf("benchmark aborted: %w",
				ctx.Err())
		}
	}

	return benchResult{
		messages: 2 * opts.pairs * opts.rounds,
		elapsed:  time.Since(start),
	}, nil
}

// spawnServers spawns the pong servers and returns the server of pair i.
// Every server is probed once, so the timed run starts with all of them
// launched.
func spawnServers(ctx context.Context, sys *system.System,
	opts benchOptions) (func(i int) mailbox.Addr, error) {

	n := opts.pairs
	if opts.servers > 0 {
		n = opts.servers
	}

	addrs := make([]mailbox.Addr, 0, n)
	for i := 0; i < n; i++ {
		server, err := sys.SpawnEventBased(
			pong, system.WithID(fmt.Sprintf("server-%d", i)),
		)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, server.Addr())
	}

	probe := actorutil.ParallelAsk(ctx, addrs, 0)
	if err := actorutil.FirstError(probe); err != nil {
		return nil, fmt.Errorf("server probe failed: %w", err)
	}

	if opts.servers <= 0 {
		return func(i int) mailbox.Addr { return addrs[i] }, nil
	}

	pool, err := actorutil.NewPool("servers", addrs...)
	if err != nil {
		return nil, err
	}

	return func(int) mailbox.Addr { return pool }, nil
}

// clientSpawner returns a function spawning the client of pair i for the
// strategy. The returned channel is closed once the client is done.
func clientSpawner(sys *system.System, opts benchOptions) (
	func(i int, server mailbox.Addr) (<-chan struct{}, error), error) {

	id := func(i int) system.SpawnOption {
		return system.WithID(fmt.Sprintf("client-%d", i))
	}

	switch opts.strategy {
	case strategyEvent:
		return func(i int, server mailbox.Addr) (<-chan struct{},
			error) {

			a, err := sys.SpawnEventBased(func(
				self *actor.EventBased) *behavior.Behavior {

				eventPing(self, server, 0, opts.rounds)
				return nil
			}, id(i))
			if err != nil {
				return nil, err
			}

			return a.Done(), nil
		}, nil

	case strategyFiber:
		return func(i int, server mailbox.Addr) (<-chan struct{},
			error) {

			a, err := sys.SpawnFiber(func(self *actor.Fiber) {
				fiberPing(self, server, opts.rounds)
			}, id(i))
			if err != nil {
				return nil, err
			}

			return a.Done(), nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStrategy,
			opts.strategy)
	}
}

// eventPing sends request n and installs the handler sending the next one.
// The client terminates once the last response arrived.
func eventPing(self *actor.EventBased, server mailbox.Addr, n, rounds int) {
	if n >= rounds {
		return
	}

	self.Request(server, 0, n).Then(behavior.New(behavior.On1(
		func(context.Context, int) fn.Result[*message.Message] {
			eventPing(self, server, n+1, rounds)
			return behavior.NoReply()
		},
	)), nil)
}

// fiberPing is the blocking version of eventPing.
func fiberPing(self *actor.Fiber, server mailbox.Addr, rounds int) {
	ack := behavior.New(behavior.On1(
		func(context.Context, int) fn.Result[*message.Message] {
			return behavior.NoReply()
		},
	))

	for n := 0; n < rounds; n++ {
		self.Request(server, 0, n).Receive(ack, nil)
	}
}
