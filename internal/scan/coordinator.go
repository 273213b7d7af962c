package scan

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/mux"
)

type coordinatorRequest interface {
	requestSealed()
}

type refreshRequest struct{}

func (refreshRequest) requestSealed() {}

type pauseRequest struct{}

func (pauseRequest) requestSealed() {}

type stateRequest struct{}

func (stateRequest) requestSealed() {}

type stopRequest struct{}

func (stopRequest) requestSealed() {}

type taggedResult struct {
	token   Token
	devices []DeviceLayouts
}

// State is a view of the coordinator used by status reporting and tests.
type State struct {
	Snapshot   input.Snapshot
	LiveTokens []Token
}

// DeviceResolver computes the candidates for a snapshot off the
// coordinator goroutine.
type DeviceResolver interface {
	Resolve(ctx context.Context, snap input.Snapshot) ([]DeviceLayouts, error)
}

// Coordinator owns the scan lifecycle: it is the only place that captures
// snapshots, decides whether a rescan is warranted, mints tokens, and
// filters stale results. All of that state lives on a single goroutine;
// resolution runs out of line and posts back through the results channel.
type Coordinator struct {
	provider input.Provider
	resolver DeviceResolver

	requests chan mux.AwaitReply[coordinatorRequest, any]
	events   chan input.Event
	results  chan taggedResult
	out      *mux.Mux[Result]
	wg       *sync.WaitGroup
}

func NewCoordinator(provider input.Provider, resolver DeviceResolver, wg *sync.WaitGroup) *Coordinator {
	c := &Coordinator{
		provider: provider,
		resolver: resolver,
		requests: make(chan mux.AwaitReply[coordinatorRequest, any]),
		events:   make(chan input.Event),
		results:  make(chan taggedResult),
		out:      mux.Make[Result](),
		wg:       wg,
	}

	wg.Add(1)
	go c.run()

	return c
}

// Attach feeds a hotplug source into the coordinator. Every delivered event
// triggers a re-snapshot.
func (c *Coordinator) Attach(src mux.Source[input.Event]) mux.CancelFunc {
	return src.Subscribe(mux.SinkFromChan(c.events))
}

// Subscribe registers a consumer for applied scan results. This is the
// output port the presentation binder hangs off.
func (c *Coordinator) Subscribe(sink mux.Sink[Result]) mux.CancelFunc {
	return c.out.Subscribe(sink)
}

// Refresh captures a fresh snapshot and launches a scan if the device set
// changed. Called on resume and on explicit rescan requests; hotplug events
// take the same path internally.
func (c *Coordinator) Refresh() {
	await := mux.NewAwaitReply[coordinatorRequest, any](refreshRequest{})
	c.requests <- await
	await.Await()
}

// Pause retires every live token, stops their resolution tasks and clears
// the remembered snapshot, so the next Refresh always rescans.
func (c *Coordinator) Pause() {
	await := mux.NewAwaitReply[coordinatorRequest, any](pauseRequest{})
	c.requests <- await
	await.Await()
}

func (c *Coordinator) State() State {
	await := mux.NewAwaitReply[coordinatorRequest, any](stateRequest{})
	c.requests <- await
	return await.Await().(State)
}

// Close tears the coordinator down. Attached sources must be cancelled
// first.
func (c *Coordinator) Close() {
	await := mux.NewAwaitReply[coordinatorRequest, any](stopRequest{})
	defer await.Await()
	c.requests <- await
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	defer c.out.Close()

	var lastSnapshot input.Snapshot
	live := make(map[Token]context.CancelFunc)
	var nextToken Token
	events := c.events

	refresh := func() {
		snapshot := input.Capture(c.provider)
		if !input.Changed(lastSnapshot, snapshot) {
			klog.V(5).Infof("device set unchanged (%d keyboards), not rescanning", len(snapshot))
			return
		}
		lastSnapshot = snapshot

		token := nextToken
		nextToken++
		ctx, cancel := context.WithCancel(context.Background())
		live[token] = cancel

		klog.V(2).Infof("device set changed, launching scan %d over %d keyboards", token, len(snapshot))
		c.wg.Add(1)
		go c.resolve(ctx, token, snapshot)
	}

	retireAll := func() {
		for token, cancel := range live {
			cancel()
			delete(live, token)
		}
		lastSnapshot = nil
	}

	for {
		select {
		case res := <-c.results:
			cancel, ok := live[res.token]
			if !ok {
				// Token already retired. Silently drop.
				klog.V(2).Infof("dropping result for retired scan %d", res.token)
				continue
			}
			delete(live, res.token)
			cancel()
			c.out.Submit(Result{Token: res.token, Devices: res.devices})
		case ev, ok := <-events:
			if !ok {
				// Source closed our sink; stop selecting on it.
				events = nil
				continue
			}
			klog.V(5).Infof("hotplug event: %#v", ev)
			refresh()
		case await := <-c.requests:
			switch await.Value().(type) {
			case refreshRequest:
				refresh()
				await.Reply(nil)
			case pauseRequest:
				retireAll()
				await.Reply(nil)
			case stateRequest:
				tokens := make([]Token, 0, len(live))
				for token := range live {
					tokens = append(tokens, token)
				}
				await.Reply(State{Snapshot: lastSnapshot, LiveTokens: tokens})
			case stopRequest:
				retireAll()
				await.Reply(nil)
				return
			}
		}
	}
}

func (c *Coordinator) resolve(ctx context.Context, token Token, snapshot input.Snapshot) {
	defer c.wg.Done()

	devices, err := c.resolver.Resolve(ctx, snapshot)
	if err != nil {
		// Cancelled mid-flight; nothing partial is emitted.
		klog.V(2).Infof("scan %d cancelled: %v", token, err)
		return
	}

	select {
	case c.results <- taggedResult{token: token, devices: devices}:
	case <-ctx.Done():
		// Retired while the result was in flight.
	}
}
