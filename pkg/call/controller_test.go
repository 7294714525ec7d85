package call

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outdial-ai/outdial/pkg/audio"
	"github.com/outdial-ai/outdial/pkg/engine"
	"github.com/outdial-ai/outdial/pkg/micbridge"
	"github.com/outdial-ai/outdial/pkg/reason"
	"github.com/outdial-ai/outdial/pkg/telephony"
	"github.com/outdial-ai/outdial/pkg/transcript"
	"github.com/outdial-ai/outdial/pkg/tts"
	"github.com/outdial-ai/outdial/pkg/vad"
)

type fakeSession struct {
	mu      sync.Mutex
	handler telephony.EventHandler
	dialed  []string
	dialErr error
	hangups int
	closes  int
}

func (s *fakeSession) RegisterHandler(h telephony.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeSession) Dial(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialed = append(s.dialed, number)
	return s.dialErr
}

func (s *fakeSession) Hangup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangups++
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSession) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dialed)
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ int, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct{ reply string }

func (f *fakeResponder) Reply(_ context.Context, _ *reason.History) (string, error) {
	return f.reply, nil
}

type fixture struct {
	controller  *Controller
	session     *fakeSession
	bridge      *micbridge.Bridge
	transcriber *fakeTranscriber
	log         *transcript.Log
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()

	if cfg == nil {
		cfg = &Config{AgentName: "Maria", TelephonyToken: "tok"}
	}

	bridge := micbridge.NewBridge(audio.DefaultSampleRate)
	t.Cleanup(func() { bridge.Close() })

	session := &fakeSession{}
	transcriber := &fakeTranscriber{text: "hello"}
	tl := transcript.NewLog()

	eng := engine.New(engine.Config{
		Greeting:      cfg.Greeting,
		Language:      cfg.Language,
		SilenceWindow: 50 * time.Millisecond,
	}, engine.Deps{
		Detector:    vad.NewEnergyDetector(vad.DefaultThreshold),
		Transcriber: transcriber,
		Synthesizer: tts.NewFallbackProvider(audio.DefaultSampleRate),
		Fallback:    tts.NewFallbackProvider(audio.DefaultSampleRate),
		Responder:   &fakeResponder{reply: "hi"},
		History:     reason.NewHistory(cfg.Instructions, 0),
		Transcript:  tl,
		Bridge:      bridge,
	})
	t.Cleanup(func() { eng.Close() })

	return &fixture{
		controller:  NewController(cfg, session, eng, bridge, tl),
		session:     session,
		bridge:      bridge,
		transcriber: transcriber,
		log:         tl,
	}
}

// drain keeps the virtual microphone flowing so playback completes.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	src, err := micbridge.Acquire(context.Background(), micbridge.Constraints{Audio: true})
	require.NoError(t, err)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				src.ReadFrame()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	t.Cleanup(func() { close(stop); src.Close() })
}

func speechFrame() []byte {
	n := audio.BytesForDuration(audio.DefaultSampleRate, audio.FrameDurationMs)
	pcm := make([]byte, n)
	for i := 0; i < n; i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 4096)
	}
	return pcm
}

func TestController_LifecycleTransitions(t *testing.T) {
	f := newFixture(t, nil)

	var states []State
	var mu sync.Mutex
	f.controller.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, f.controller.Start(context.Background(), "+15551234567"))
	assert.Equal(t, StateConnecting, f.controller.State())
	assert.Equal(t, 1, f.session.dialCount())

	f.session.handler.OnConnected()
	assert.Equal(t, StateRinging, f.controller.State())

	f.drain(t)
	f.session.handler.OnAnswered(audio.DefaultSampleRate)
	assert.Equal(t, StateActive, f.controller.State())

	f.session.handler.OnTerminated("remote hangup")
	assert.Equal(t, StateEnded, f.controller.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateRinging, StateActive, StateEnded}, states)
}

func TestController_MissingTokenIsFatalBeforeConnect(t *testing.T) {
	f := newFixture(t, &Config{AgentName: "Maria"})

	err := f.controller.Start(context.Background(), "+15551234567")
	require.Error(t, err)
	assert.Equal(t, StateError, f.controller.State())
	assert.Zero(t, f.session.dialCount())
}

func TestController_MissingNumberIsFatal(t *testing.T) {
	f := newFixture(t, nil)

	err := f.controller.Start(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, StateError, f.controller.State())
	assert.Zero(t, f.session.dialCount())
}

func TestController_TeardownIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.controller.Start(context.Background(), "+15551234567"))

	f.session.handler.OnTerminated("remote hangup")
	f.session.handler.OnTerminated("remote hangup")
	require.NoError(t, f.controller.Close())

	assert.Equal(t, StateEnded, f.controller.State())
	assert.Equal(t, 1, f.session.closeCount())
}

func TestController_TransportErrorIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.controller.Start(context.Background(), "+15551234567"))

	f.session.handler.OnError(assert.AnError)
	assert.Equal(t, StateError, f.controller.State())
	assert.ErrorIs(t, f.controller.Err(), assert.AnError)

	// A late terminated event must not flip the terminal state.
	f.session.handler.OnTerminated("connection lost")
	assert.Equal(t, StateError, f.controller.State())
}

func TestController_HangupReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.controller.Start(context.Background(), "+15551234567"))

	require.NoError(t, f.controller.Hangup())
	assert.Equal(t, StateEnded, f.controller.State())
	assert.Equal(t, 1, f.session.hangups)
	assert.Equal(t, 1, f.session.closeCount())
}

func TestController_FramesReachTheEngine(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.controller.Start(context.Background(), "+15551234567"))

	f.drain(t)
	f.session.handler.OnAnswered(audio.DefaultSampleRate)

	// Empty greeting: the engine goes straight to listening.
	require.Eventually(t, func() bool {
		for i := 0; i < 15; i++ {
			f.session.handler.OnAudioFrame(speechFrame())
		}
		return f.transcriber.callCount() > 0
	}, 3*time.Second, 60*time.Millisecond)
}

func TestController_SetMutedTogglesBridge(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.controller.Start(context.Background(), "+15551234567"))

	f.controller.SetMuted(true)
	assert.True(t, f.bridge.Muted())
	f.controller.SetMuted(false)
	assert.False(t, f.bridge.Muted())
}

func TestFetchConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cred", r.Header.Get("Authorization"))
		assert.Equal(t, "/agents/agent-1/call-config", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"agentName":"Maria","telephonyToken":"tok","greeting":"Hello, this is Maria","language":"en-US"}`))
	}))
	defer srv.Close()

	cfg, err := FetchConfig(context.Background(), srv.URL, "cred", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "Maria", cfg.AgentName)
	assert.Equal(t, "tok", cfg.TelephonyToken)
	assert.Equal(t, "Hello, this is Maria", cfg.Greeting)
}

func TestFetchConfig_MissingTokenFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"agentName":"Maria"}`))
	}))
	defer srv.Close()

	_, err := FetchConfig(context.Background(), srv.URL, "cred", "agent-1")
	assert.Error(t, err)
}

func TestFetchConfig_MissingCredentialFatal(t *testing.T) {
	_, err := FetchConfig(context.Background(), "http://localhost:1", "", "agent-1")
	assert.Error(t, err)
}
