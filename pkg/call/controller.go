package call

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/outdial-ai/outdial/pkg/engine"
	"github.com/outdial-ai/outdial/pkg/micbridge"
	"github.com/outdial-ai/outdial/pkg/telephony"
	"github.com/outdial-ai/outdial/pkg/trace"
	"github.com/outdial-ai/outdial/pkg/transcript"
)

// Controller owns one call end to end: it installs the virtual
// microphone, drives the session, and routes telephony events into
// the turn-taking engine. Exactly one active call per controller.
type Controller struct {
	config  *Config
	session telephony.Session
	engine  *engine.Engine
	bridge  *micbridge.Bridge
	log     *transcript.Log

	mu      sync.Mutex
	state   State
	lastErr error
	onState func(State)

	teardown sync.Once
}

// NewController wires a controller over an established component set.
// The session is dialed by Start; nothing connects before that.
func NewController(cfg *Config, session telephony.Session, eng *engine.Engine, bridge *micbridge.Bridge, tl *transcript.Log) *Controller {
	return &Controller{
		config:  cfg,
		session: session,
		engine:  eng,
		bridge:  bridge,
		log:     tl,
		state:   StateLoading,
	}
}

// OnStateChange registers a callback fired on every lifecycle
// transition. The callback must not call back into the controller.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error behind a StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns the call's transcript log.
func (c *Controller) Transcript() *transcript.Log {
	return c.log
}

// Start validates configuration, installs the virtual microphone, and
// places the call. Setup failures are fatal: the controller lands in
// StateError without a partial connect.
func (c *Controller) Start(ctx context.Context, number string) error {
	if c.config == nil || c.config.TelephonyToken == "" {
		err := fmt.Errorf("missing telephony token")
		c.fail(err)
		return err
	}
	if number == "" {
		err := fmt.Errorf("destination number is required")
		c.fail(err)
		return err
	}

	c.setState(StateConnecting)

	callID := ""
	if s, ok := c.session.(interface{ CallID() string }); ok {
		callID = s.CallID()
	}
	ctx, span := trace.InstrumentDial(ctx, callID, c.config.AgentName, number)
	defer span.End()

	if err := c.bridge.Install(); err != nil {
		err = fmt.Errorf("bridge install failed: %w", err)
		trace.RecordError(span, err)
		c.fail(err)
		return err
	}

	c.session.RegisterHandler(c)
	if err := c.session.Dial(ctx, number); err != nil {
		err = fmt.Errorf("dial failed: %w", err)
		trace.RecordError(span, err)
		c.fail(err)
		return err
	}

	log.Printf("[Call] Calling %s as %q", number, c.config.AgentName)
	return nil
}

// Hangup ends the call locally.
func (c *Controller) Hangup() error {
	err := c.session.Hangup()
	c.release(StateEnded, nil)
	return err
}

// SetMuted toggles the outgoing audio gain.
func (c *Controller) SetMuted(muted bool) {
	c.bridge.SetMuted(muted)
}

// Close tears everything down. Idempotent; safe from any state.
func (c *Controller) Close() error {
	c.release(StateEnded, nil)
	return nil
}

// OnConnected implements telephony.EventHandler.
func (c *Controller) OnConnected() {
	c.setState(StateRinging)
}

// OnAnswered implements telephony.EventHandler.
func (c *Controller) OnAnswered(sampleRate int) {
	c.setState(StateActive)
	c.engine.HandleAnswered(sampleRate)
}

// OnAudioFrame implements telephony.EventHandler.
func (c *Controller) OnAudioFrame(pcm []byte) {
	c.engine.HandleFrame(pcm)
}

// OnTerminated implements telephony.EventHandler.
func (c *Controller) OnTerminated(reason string) {
	log.Printf("[Call] Terminated: %s", reason)
	c.release(StateEnded, nil)
}

// OnError implements telephony.EventHandler. Transport errors are
// terminal; turn-level soft failures never reach this path.
func (c *Controller) OnError(err error) {
	log.Printf("[Call] Transport error: %v", err)
	c.release(StateError, err)
}

// fail records a fatal setup error before any resources were taken.
func (c *Controller) fail(err error) {
	c.release(StateError, err)
}

// release runs the teardown path exactly once: stop the engine (which
// cancels the silence timer), restore and close the bridge, release
// the session, then land in the final state.
func (c *Controller) release(final State, err error) {
	c.teardown.Do(func() {
		c.engine.Close()
		c.bridge.Close()
		c.session.Close()

		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.setState(final)
	})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state.Terminal() || c.state == s {
		c.mu.Unlock()
		return
	}
	log.Printf("[Call] %s -> %s", c.state, s)
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

var _ telephony.EventHandler = (*Controller)(nil)
