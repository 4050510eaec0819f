// Package orchestrator implements the top-level Run entry point: it
// dedupes inputs and browsers, starts one Control Server per input,
// runs a Browser Supervisor per (input, browser) pair concurrently, and
// aggregates every Client's terminal outcome into a RunFinish.
//
// Shaped as build config -> start -> run concurrently -> await ->
// classify outcome -> build aggregate result, with a worker-pool/
// drain/termination-check loop over the work items. Unlike an
// unbounded recursive fan-out (arbitrary depth, dedup, max-runs, a
// buffered work queue), qtap's pair set is fixed up front as the
// Cartesian product of inputs x browsers, so the queue/worker-pool
// machinery is trimmed to a flat sync.WaitGroup over a fixed slice of
// pairs, keeping only the "first failure cancels the rest" and
// "per-item result aggregation under a mutex" shape.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/qunitjs/qtap/bus"
	"github.com/qunitjs/qtap/launcher"
	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/server"
	"github.com/qunitjs/qtap/types"
	"github.com/qunitjs/qtap/watchdog"
)

// Config configures one orchestrator Run.
type Config struct {
	Inputs         []types.TestInput
	Browsers       []string
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	// Debug disables timeouts and passes a never-firing cancellation to
	// every launcher.
	Debug    bool
	Registry *launcher.Registry
	Logger   *log.Logger
	// Subscribers are registered on a Bus the orchestrator owns for the
	// lifetime of this Run, so a panicking subscriber's fault can be
	// wired straight into "cancel everything, emit error not finish"
	// without exposing the Bus's publishing side to callers.
	Subscribers []bus.Subscriber
}

// pair is one (TestInput, browserName) unit of work.
type pair struct {
	srv         *server.Server
	browserName string
}

// pairSetup is the result of a pair's synchronous launch phase.
type pairSetup struct {
	client *types.Client
	handle launcher.Handle
	err    error
}

// Run executes every (input x browser) pair concurrently and returns
// the run-wide aggregate. The returned error is only non-nil for a
// Control Server that failed to start, which prevents any browser from
// launching. Launch failures, unexpected browser exits and timeouts
// surface as `bail` events, and a reporter fault as an `error` event in
// place of `finish`, all with a nil error return.
func Run(ctx context.Context, cfg Config) (*types.RunFinish, error) {
	inputs := types.DedupInputs(cfg.Inputs)
	browserNames := types.DedupBrowserNames(cfg.Browsers)

	connectTimeout, idleTimeout := cfg.ConnectTimeout, cfg.IdleTimeout
	if cfg.Debug {
		connectTimeout, idleTimeout = debugTimeout(), debugTimeout()
	}

	globalCtx, globalCancel := context.WithCancel(ctx)
	defer globalCancel()

	rs := &runState{finish: types.NewRunFinish()}

	var reporterFaultOnce sync.Once
	evtBus := bus.New(func(recovered any) {
		reporterFaultOnce.Do(func() {
			rs.mu.Lock()
			rs.reporterErr = fmt.Errorf("reporter panicked: %v", recovered)
			rs.mu.Unlock()
			rs.cancelAll("reporter fault", evtBus)
		})
	})
	for _, sub := range cfg.Subscribers {
		evtBus.Subscribe(sub)
	}

	wd := watchdog.New(connectTimeout, idleTimeout, func(c *types.Client, connectPhase bool, reason string) {
		to := types.StateTimedoutIdle
		if connectPhase {
			to = types.StateTimedoutConnect
		}
		if !c.TryTransition(to) {
			return
		}
		wd.Clear(c.ClientID)
		rs.mergeBail(reason)
		evtBus.Publish(types.BailEvent{ClientID: c.ClientID, Reason: reason})
	})

	hooks := server.Hooks{
		OnOnline: func(c *types.Client) {
			evtBus.Publish(types.OnlineEvent{ClientID: c.ClientID})
		},
		OnConsoleError: func(c *types.Client, message string) {
			evtBus.Publish(types.ConsoleErrorEvent{ClientID: c.ClientID, Message: message})
		},
		OnFinish: func(c *types.Client, result types.FinalResult) {
			wd.Clear(c.ClientID)
			if result.Bailout != "" {
				rs.mergeBail(result.Bailout)
				evtBus.Publish(types.BailEvent{ClientID: c.ClientID, Reason: result.Bailout})
				return
			}
			rs.mergeResult(result)
			evtBus.Publish(types.ResultEvent{
				ClientID: c.ClientID,
				OK:       result.OK,
				Total:    result.Total,
				Passed:   result.Passed,
				Failed:   result.Failed,
				Skips:    result.Skips,
				Todos:    result.Todos,
				Failures: result.Failures,
			})
		},
	}

	servers := make(map[string]*server.Server, len(inputs))
	if err := startServers(inputs, hooks, cfg.Logger, &servers); err != nil {
		return nil, err
	}
	defer closeServers(servers)

	pairs := make([]pair, 0, len(inputs)*len(browserNames))
	for _, in := range inputs {
		srv := servers[in.Raw]
		for _, b := range browserNames {
			pairs = append(pairs, pair{srv: srv, browserName: b})
		}
	}

	wd.Start()
	defer wd.Stop()

	// Phase A: invoke every launcher synchronously and collect handles,
	// so ClientsSnapshotEvent can be emitted once every display name is
	// known, so the clients-snapshot event reflects every display name.
	setups := make([]pairSetup, len(pairs))
	var phaseA sync.WaitGroup
	for i, p := range pairs {
		phaseA.Add(1)
		go func(i int, p pair) {
			defer phaseA.Done()
			setups[i] = launchPair(globalCtx, p, cfg, evtBus, rs)
		}(i, p)
	}
	phaseA.Wait()

	summaries := make([]types.ClientSummary, 0, len(setups))
	for _, su := range setups {
		if su.client == nil {
			continue
		}
		summaries = append(summaries, types.ClientSummary{
			ClientID:    su.client.ClientID,
			TestFile:    su.client.TestFileDisplay,
			BrowserName: su.client.BrowserName,
			DisplayName: su.client.DisplayName(),
		})
	}
	evtBus.Publish(types.ClientsSnapshotEvent{Clients: summaries})

	// Register every live client with the watchdog only now, so the
	// connect-timeout clock effectively starts at launch invocation.
	for _, su := range setups {
		if su.client != nil && su.err == nil {
			wd.Register(su.client)
		}
	}

	// Phase B: await every browser's exit.
	var phaseB sync.WaitGroup
	for _, su := range setups {
		if su.client == nil {
			continue
		}
		phaseB.Add(1)
		go func(su pairSetup) {
			defer phaseB.Done()
			awaitPair(su, evtBus, rs)
		}(su)
	}
	phaseB.Wait()

	rs.mu.Lock()
	finish := rs.finish
	reporterErr := rs.reporterErr
	rs.mu.Unlock()
	finish.Finalize()

	if reporterErr != nil {
		evtBus.Publish(types.ErrorEvent{Err: reporterErr})
	} else {
		evtBus.Publish(types.FinishEvent{
			OK:       finish.OK,
			ExitCode: finish.ExitCode,
			Total:    finish.Total,
			Passed:   finish.Passed,
			Failed:   finish.Failed,
			Bailout:  finish.Bailout,
		})
	}

	return finish, nil
}

// runState accumulates the run-wide aggregate and tracks every live
// Client so a Supervisor failure can force-cancel the rest.
type runState struct {
	mu          sync.Mutex
	finish      *types.RunFinish
	reporterErr error
	clients     []*types.Client
}

func (rs *runState) addClient(c *types.Client) {
	rs.mu.Lock()
	rs.clients = append(rs.clients, c)
	rs.mu.Unlock()
}

// cancelAll force-bails every other non-terminal Client so one failing
// pair doesn't leave the rest running unsupervised. TryTransition's own
// terminal-state handling invokes each Client's cancel function, so
// forcing the state machine here is what actually tears down the
// browser; already-terminal Clients are untouched.
func (rs *runState) cancelAll(reason string, b *bus.Bus) {
	rs.mu.Lock()
	clients := make([]*types.Client, len(rs.clients))
	copy(clients, rs.clients)
	rs.mu.Unlock()

	for _, c := range clients {
		if !c.TryTransition(types.StateBailed) {
			continue
		}
		rs.mergeBail(reason)
		b.Publish(types.BailEvent{ClientID: c.ClientID, Reason: reason})
	}
}

func (rs *runState) mergeResult(r types.FinalResult) {
	rs.mu.Lock()
	rs.finish.MergeResult(r)
	rs.mu.Unlock()
}

func (rs *runState) mergeBail(reason string) {
	rs.mu.Lock()
	rs.finish.MergeBail(reason)
	rs.mu.Unlock()
}

func startServers(inputs []types.TestInput, hooks server.Hooks, logger *log.Logger, servers *map[string]*server.Server) error {
	type startResult struct {
		input types.TestInput
		srv   *server.Server
		err   error
	}
	results := make([]startResult, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in types.TestInput) {
			defer wg.Done()
			srv := server.New(types.NewServerID(), in, hooks, logger)
			err := srv.Start()
			results[i] = startResult{input: in, srv: srv, err: err}
		}(i, in)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			for _, other := range results {
				if other.srv != nil {
					_ = other.srv.Close()
				}
			}
			return r.err
		}
		(*servers)[r.input.Raw] = r.srv
	}
	return nil
}

func closeServers(servers map[string]*server.Server) {
	for _, s := range servers {
		_ = s.Close()
	}
}

// launchPair registers a Client and invokes its launcher synchronously,
// returning before the browser necessarily exits. A failure here is a
// launch failure and is a Supervisor failure, so it
// cancels every other in-flight Client.
func launchPair(globalCtx context.Context, p pair, cfg Config, b *bus.Bus, rs *runState) pairSetup {
	browserCtx, browserCancel := context.WithCancel(globalCtx)
	client := p.srv.RegisterClient(p.browserName, browserCancel)
	rs.addClient(client)

	b.Publish(types.ClientEvent{
		ClientID:    client.ClientID,
		TestFile:    client.TestFileDisplay,
		BrowserName: client.BrowserName,
		DisplayName: client.DisplayName(),
	})

	l, err := cfg.Registry.Resolve(p.browserName)
	if err != nil {
		return failLaunch(client, err, b, rs)
	}

	signals := launcher.Signals{Browser: browserCtx, Global: globalCtx}
	if cfg.Debug {
		signals.Browser = context.Background()
	}

	launchURL := p.srv.LaunchURL(client.ClientID)
	handle, err := l.Launch(globalCtx, launchURL, signals, cfg.Logger, cfg.Debug)
	if handle != nil {
		client.SetDisplayName(handle.DisplayName())
	}
	if err != nil {
		return failLaunch(client, err, b, rs)
	}

	return pairSetup{client: client, handle: handle}
}

func failLaunch(client *types.Client, err error, b *bus.Bus, rs *runState) pairSetup {
	client.TryTransition(types.StateLaunchError)
	rs.mergeBail(err.Error())
	b.Publish(types.BailEvent{ClientID: client.ClientID, Reason: err.Error()})
	rs.cancelAll(fmt.Sprintf("cancelled: %s", err.Error()), b)
	return pairSetup{client: client, err: err}
}

func awaitPair(su pairSetup, b *bus.Bus, rs *runState) {
	if su.handle == nil {
		return
	}

	err := su.handle.Wait()
	if err == nil {
		return
	}

	// The browser exited unexpectedly, without the per-client
	// cancellation having been signalled by a normal terminal
	// transition. TryTransition is a no-op if the client is already
	// terminal (finish/bail/timeout reached it first). StateBailed is
	// the target here rather than StateLaunchError because it is valid
	// from both StateLaunching and StateConnected, covering an
	// unexpected exit at either phase.
	if !su.client.TryTransition(types.StateBailed) {
		return
	}
	rs.mergeBail(err.Error())
	b.Publish(types.BailEvent{ClientID: su.client.ClientID, Reason: err.Error()})
	rs.cancelAll(fmt.Sprintf("cancelled: %s", err.Error()), b)
}

// debugTimeout returns an effectively-infinite duration for
// --debug/QTAP_DEBUG=1, so the Watchdog never bails a session a
// developer has left open to inspect.
func debugTimeout() time.Duration {
	return time.Duration(math.MaxInt64)
}
