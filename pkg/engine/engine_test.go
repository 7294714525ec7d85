package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outdial-ai/outdial/pkg/audio"
	"github.com/outdial-ai/outdial/pkg/micbridge"
	"github.com/outdial-ai/outdial/pkg/reason"
	"github.com/outdial-ai/outdial/pkg/transcript"
	"github.com/outdial-ai/outdial/pkg/tts"
	"github.com/outdial-ai/outdial/pkg/vad"
)

const testRate = audio.DefaultSampleRate

// speechFrame returns 20ms of audio loud enough to trip the detector.
func speechFrame() []byte {
	n := audio.BytesForDuration(testRate, audio.FrameDurationMs)
	pcm := make([]byte, n)
	for i := 0; i < n; i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 4096)
	}
	return pcm
}

// silentFrame returns 20ms of digital silence.
func silentFrame() []byte {
	return make([]byte, audio.BytesForDuration(testRate, audio.FrameDurationMs))
}

type fakeTranscriber struct {
	mu      sync.Mutex
	calls   int
	lastWAV []byte
	text    string
	err     error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav []byte, _ int, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastWAV = wav
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeResponder) Reply(_ context.Context, _ *reason.History) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (f *fakeSynthesizer) Name() string          { return "fake" }
func (f *fakeSynthesizer) ValidateConfig() error { return nil }

func (f *fakeSynthesizer) Synthesize(_ context.Context, req *tts.Request) (*tts.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, req.Text)
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Response{PCM: silentFrame(), SampleRate: testRate}, nil
}

func (f *fakeSynthesizer) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// testFixture assembles an engine over a real bridge with a drainer
// pulling frames so playback completes.
type testFixture struct {
	engine      *Engine
	bridge      *micbridge.Bridge
	transcriber *fakeTranscriber
	responder   *fakeResponder
	synth       *fakeSynthesizer
	history     *reason.History
	log         *transcript.Log
}

func newFixture(t *testing.T, config Config) *testFixture {
	t.Helper()

	bridge := micbridge.NewBridge(testRate)
	require.NoError(t, bridge.Install())
	t.Cleanup(func() { bridge.Close() })

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

	f := &testFixture{
		bridge:      bridge,
		transcriber: &fakeTranscriber{text: "hello"},
		responder:   &fakeResponder{reply: "hi there"},
		synth:       &fakeSynthesizer{},
		history:     reason.NewHistory("be helpful", 0),
		log:         transcript.NewLog(),
	}
	if config.SilenceWindow == 0 {
		config.SilenceWindow = 50 * time.Millisecond
	}
	f.engine = New(config, Deps{
		Detector:    vad.NewEnergyDetector(vad.DefaultThreshold),
		Transcriber: f.transcriber,
		Synthesizer: f.synth,
		Fallback:    tts.NewFallbackProvider(testRate),
		Responder:   f.responder,
		History:     f.history,
		Transcript:  f.log,
		Bridge:      bridge,
	})
	t.Cleanup(func() { f.engine.Close() })
	return f
}

func (f *testFixture) waitState(t *testing.T, want TurnState) {
	t.Helper()
	require.Eventually(t, func() bool { return f.engine.State() == want },
		3*time.Second, 2*time.Millisecond, "never reached %s", want)
}

// speakTurn feeds enough loud frames to pass the minimum speech guard,
// then lets the silence window elapse.
func (f *testFixture) speakTurn(t *testing.T) {
	t.Helper()
	f.waitState(t, StateListening)
	for i := 0; i < 15; i++ { // 300ms of speech
		f.engine.HandleFrame(speechFrame())
	}
}

func TestEngine_GreetingSpokenAndRecordedFirst(t *testing.T) {
	f := newFixture(t, Config{Greeting: "Hello! Am I speaking with Maria?"})

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)

	entries := f.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, transcript.SpeakerAgent, entries[0].Speaker)
	assert.Equal(t, "Hello! Am I speaking with Maria?", entries[0].Text)

	msgs := f.history.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reason.RoleAssistant, msgs[0].Role)

	assert.Equal(t, []string{"Hello! Am I speaking with Maria?"}, f.synth.spoken())
}

func TestEngine_EmptyGreetingGoesStraightToListening(t *testing.T) {
	f := newFixture(t, Config{})

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)

	assert.Zero(t, f.log.Len())
	assert.Empty(t, f.synth.spoken())
}

func TestEngine_FullTurnCycle(t *testing.T) {
	f := newFixture(t, Config{Greeting: "Hello! Am I speaking with Maria?"})
	f.transcriber.text = "Yes, this is Maria."
	f.responder.reply = "Great! I'm calling about your appointment."

	f.engine.HandleAnswered(testRate)
	f.speakTurn(t)

	require.Eventually(t, func() bool { return f.log.Len() >= 3 },
		3*time.Second, 2*time.Millisecond)
	f.waitState(t, StateListening)

	entries := f.log.Entries()
	assert.Equal(t, transcript.SpeakerAgent, entries[0].Speaker)
	assert.Equal(t, transcript.SpeakerCaller, entries[1].Speaker)
	assert.Equal(t, "Yes, this is Maria.", entries[1].Text)
	assert.Equal(t, transcript.SpeakerAgent, entries[2].Speaker)
	assert.Equal(t, "Great! I'm calling about your appointment.", entries[2].Text)

	// The transcriber got a well-formed WAV wrapping the caller audio.
	wav := f.transcriber.lastWAV
	require.True(t, len(wav) > 44)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
}

func TestEngine_ExactlyOneProcessingTransitionPerWindow(t *testing.T) {
	f := newFixture(t, Config{})

	f.engine.HandleAnswered(testRate)
	f.speakTurn(t)

	// Silence for several windows past the first firing must not
	// produce a second transcription.
	require.Eventually(t, func() bool { return f.transcriber.callCount() == 1 },
		3*time.Second, 2*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, f.transcriber.callCount())
}

func TestEngine_ShortUtteranceNeverTranscribed(t *testing.T) {
	f := newFixture(t, Config{MinSpeechMs: 200})

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)

	// 100ms of speech, under the guard.
	for i := 0; i < 5; i++ {
		f.engine.HandleFrame(speechFrame())
	}

	time.Sleep(200 * time.Millisecond)
	f.waitState(t, StateListening)
	assert.Zero(t, f.transcriber.callCount())
	assert.Zero(t, f.log.Len())
}

func TestEngine_SilenceAloneNeverArmsTimer(t *testing.T) {
	f := newFixture(t, Config{})

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)

	for i := 0; i < 20; i++ {
		f.engine.HandleFrame(silentFrame())
	}

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, f.transcriber.callCount())
	assert.Equal(t, StateListening, f.engine.State())
}

func TestEngine_EmptyTranscriptionLeavesNoEntries(t *testing.T) {
	f := newFixture(t, Config{})
	f.transcriber.text = "   "

	f.engine.HandleAnswered(testRate)
	f.speakTurn(t)

	require.Eventually(t, func() bool { return f.transcriber.callCount() == 1 },
		3*time.Second, 2*time.Millisecond)
	f.waitState(t, StateListening)
	assert.Zero(t, f.log.Len())
	assert.Zero(t, f.history.Len())
}

func TestEngine_FailedTranscriptionLeavesNoEntries(t *testing.T) {
	f := newFixture(t, Config{})
	f.transcriber.err = errors.New("provider down")

	f.engine.HandleAnswered(testRate)
	f.speakTurn(t)

	require.Eventually(t, func() bool { return f.transcriber.callCount() == 1 },
		3*time.Second, 2*time.Millisecond)
	f.waitState(t, StateListening)
	assert.Zero(t, f.log.Len())
}

func TestEngine_EmptyReplySkipsTurnThenApologizes(t *testing.T) {
	f := newFixture(t, Config{})
	f.responder.reply = ""

	f.engine.HandleAnswered(testRate)

	// First failed reply: caller entry only, no agent line.
	f.speakTurn(t)
	require.Eventually(t, func() bool { return f.log.Len() == 1 },
		3*time.Second, 2*time.Millisecond)
	f.waitState(t, StateListening)
	assert.Empty(t, f.synth.spoken())

	// Second consecutive failure: the apology is spoken.
	f.speakTurn(t)
	require.Eventually(t, func() bool { return f.log.Len() == 3 },
		3*time.Second, 2*time.Millisecond)
	f.waitState(t, StateListening)

	entries := f.log.Entries()
	assert.Equal(t, transcript.SpeakerAgent, entries[2].Speaker)
	assert.Equal(t, apologyLine, entries[2].Text)
	assert.Equal(t, []string{apologyLine}, f.synth.spoken())
}

func TestEngine_SynthesisFailureFallsBackAudibly(t *testing.T) {
	f := newFixture(t, Config{Greeting: "Hello"})
	f.synth.err = errors.New("quota exceeded")

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)

	// The greeting still lands in the transcript; playback used the
	// fallback tones rather than going silent.
	require.Equal(t, 1, f.log.Len())
}

func TestEngine_FramesDroppedOutsideListening(t *testing.T) {
	f := newFixture(t, Config{})

	// Idle: frames dropped.
	f.engine.HandleFrame(speechFrame())
	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, f.transcriber.callCount())
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestEngine_CloseIdempotentAndStopsTimer(t *testing.T) {
	f := newFixture(t, Config{})

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)
	f.engine.HandleFrame(speechFrame())

	require.NoError(t, f.engine.Close())
	require.NoError(t, f.engine.Close())

	// The armed timer must not fire a turn after close.
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, f.transcriber.callCount())

	f.engine.HandleFrame(speechFrame())
	assert.Zero(t, f.transcriber.callCount())
}

func TestEngine_HandleAnsweredIgnoredWhenNotIdle(t *testing.T) {
	f := newFixture(t, Config{Greeting: "Hello"})

	f.engine.HandleAnswered(testRate)
	f.waitState(t, StateListening)
	f.engine.HandleAnswered(testRate)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"Hello"}, f.synth.spoken())
	assert.Equal(t, 1, f.log.Len())
}

func TestEngine_LongPauseMidSentenceSplitsTurns(t *testing.T) {
	f := newFixture(t, Config{SilenceWindow: 60 * time.Millisecond})

	f.engine.HandleAnswered(testRate)
	f.speakTurn(t)

	// A pause longer than the window ends the turn.
	require.Eventually(t, func() bool { return f.transcriber.callCount() == 1 },
		3*time.Second, 2*time.Millisecond)
	f.waitState(t, StateListening)

	// The continuation becomes a second turn.
	f.speakTurn(t)
	require.Eventually(t, func() bool { return f.transcriber.callCount() == 2 },
		3*time.Second, 2*time.Millisecond)
}
