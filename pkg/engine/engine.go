package engine

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outdial-ai/outdial/pkg/asr"
	"github.com/outdial-ai/outdial/pkg/audio"
	"github.com/outdial-ai/outdial/pkg/micbridge"
	"github.com/outdial-ai/outdial/pkg/reason"
	"github.com/outdial-ai/outdial/pkg/trace"
	"github.com/outdial-ai/outdial/pkg/transcript"
	"github.com/outdial-ai/outdial/pkg/tts"
	"github.com/outdial-ai/outdial/pkg/vad"
)

const (
	// DefaultSilenceWindow is how long the caller must stay quiet after
	// speaking before their turn is considered over.
	DefaultSilenceWindow = 1800 * time.Millisecond

	// DefaultMinSpeechMs guards against transcribing coughs and clicks.
	DefaultMinSpeechMs = 200

	// DefaultCollaboratorTimeout bounds each transcribe, reason and
	// synthesize call.
	DefaultCollaboratorTimeout = 30 * time.Second

	// apologyAfter is the number of consecutive failed replies before
	// the engine speaks a canned apology instead of staying silent.
	apologyAfter = 2
)

const apologyLine = "I'm sorry, I'm having trouble hearing you. Could you say that again?"

// Config tunes the turn-taking engine. Zero values fall back to the
// defaults above.
type Config struct {
	Greeting string
	Voice    string
	Language string

	SilenceWindow       time.Duration
	MinSpeechMs         int
	CollaboratorTimeout time.Duration
}

// Deps are the collaborators the engine drives each turn.
type Deps struct {
	Detector    vad.Detector
	Transcriber asr.Transcriber
	Synthesizer tts.Provider
	Fallback    tts.Provider
	Responder   reason.Responder

	History    *reason.History
	Transcript *transcript.Log
	Bridge     *micbridge.Bridge
}

// Engine owns turn-taking for one call: it accumulates caller audio
// while listening, detects end of turn by silence, and runs the
// transcribe/reason/synthesize cycle. At most one turn is ever in
// flight; the TurnState is the mutual exclusion.
type Engine struct {
	config Config
	deps   Deps

	mu         sync.Mutex
	state      TurnState
	sampleRate int
	buf        []byte
	silence    *time.Timer

	// consecutive failed replies, reset on success
	replyFailures int

	closed  atomic.Bool
	onState func(TurnState)
}

// New creates an engine in the idle state.
func New(config Config, deps Deps) *Engine {
	if config.SilenceWindow == 0 {
		config.SilenceWindow = DefaultSilenceWindow
	}
	if config.MinSpeechMs == 0 {
		config.MinSpeechMs = DefaultMinSpeechMs
	}
	if config.CollaboratorTimeout == 0 {
		config.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	return &Engine{
		config:     config,
		deps:       deps,
		state:      StateIdle,
		sampleRate: audio.DefaultSampleRate,
	}
}

// OnStateChange registers a callback fired on every turn transition.
// The callback must not call back into the engine.
func (e *Engine) OnStateChange(fn func(TurnState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = fn
}

// State returns the current turn state.
func (e *Engine) State() TurnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HandleAnswered starts the call at the negotiated sample rate: the
// greeting is spoken first, then the engine settles into listening.
func (e *Engine) HandleAnswered(sampleRate int) {
	if e.closed.Load() {
		return
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return
	}
	if sampleRate > 0 {
		e.sampleRate = sampleRate
	}
	e.setStateLocked(StateGreeting)
	e.mu.Unlock()

	go e.runGreeting()
}

func (e *Engine) runGreeting() {
	greeting := strings.TrimSpace(e.config.Greeting)
	if greeting != "" {
		// The transcript and history carry the greeting even if
		// playback is cut short by teardown.
		e.deps.History.AppendAssistant(greeting)
		e.deps.Transcript.Append(transcript.SpeakerAgent, greeting)
		e.speak(context.Background(), greeting)
	}
	e.backToListening()
}

// HandleFrame feeds one caller audio frame to the engine. Frames are
// only accepted while listening; anything else is the agent's turn and
// the frame is dropped.
func (e *Engine) HandleFrame(pcm []byte) {
	if e.closed.Load() || len(pcm) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateListening {
		return
	}

	e.buf = append(e.buf, pcm...)

	// Speech energy re-arms the single silence timer. The timer never
	// arms before the caller has actually said something.
	if e.deps.Detector.Detect(pcm) {
		if e.silence != nil {
			e.silence.Stop()
		}
		e.silence = time.AfterFunc(e.config.SilenceWindow, e.onSilence)
	}
}

// onSilence fires once per armed window and hands the accumulated
// audio to the turn cycle.
func (e *Engine) onSilence() {
	if e.closed.Load() {
		return
	}

	e.mu.Lock()
	if e.state != StateListening {
		e.mu.Unlock()
		return
	}
	pcm := e.buf
	e.buf = nil
	e.silence = nil
	e.setStateLocked(StateProcessing)
	e.mu.Unlock()

	e.runTurn(pcm)
}

// runTurn executes one transcribe/reason/synthesize cycle.
func (e *Engine) runTurn(pcm []byte) {
	minBytes := audio.BytesForDuration(e.sampleRate, e.config.MinSpeechMs)
	if len(pcm) < minBytes {
		log.Printf("[Engine] Discarding %dms of audio, below minimum speech",
			audio.DurationMs(pcm, e.sampleRate))
		e.backToListening()
		return
	}

	ctx, span := trace.InstrumentTurn(context.Background(), len(pcm))
	defer span.End()

	text, err := e.transcribe(ctx, pcm)
	if err != nil {
		log.Printf("[Engine] Transcription failed: %v", err)
		e.backToListening()
		return
	}
	if text == "" {
		e.backToListening()
		return
	}
	if e.closed.Load() {
		return
	}

	e.deps.History.AppendUser(text)
	e.deps.Transcript.Append(transcript.SpeakerCaller, text)

	reply, err := e.reply(ctx)
	if err != nil || reply == "" {
		if err != nil {
			log.Printf("[Engine] Reply failed: %v", err)
		}
		e.mu.Lock()
		e.replyFailures++
		failures := e.replyFailures
		e.mu.Unlock()
		if failures < apologyAfter {
			e.backToListening()
			return
		}
		reply = apologyLine
	}

	e.mu.Lock()
	e.replyFailures = 0
	if e.closed.Load() || e.state != StateProcessing {
		e.mu.Unlock()
		return
	}
	e.setStateLocked(StateSpeaking)
	e.mu.Unlock()

	e.deps.History.AppendAssistant(reply)
	e.deps.Transcript.Append(transcript.SpeakerAgent, reply)

	e.speak(ctx, reply)
	e.backToListening()
}

func (e *Engine) transcribe(parent context.Context, pcm []byte) (string, error) {
	ctx, cancel := e.callContext(parent)
	defer cancel()

	wav := audio.BuildWAV(pcm, e.sampleRate)
	ctx, span := trace.InstrumentTranscribe(ctx, "whisper", len(wav))
	defer span.End()

	text, err := e.deps.Transcriber.Transcribe(ctx, wav, e.sampleRate, e.config.Language)
	if err != nil {
		trace.RecordError(span, err)
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) reply(parent context.Context) (string, error) {
	ctx, cancel := e.callContext(parent)
	defer cancel()

	ctx, span := trace.InstrumentReason(ctx, e.deps.History.Len())
	defer span.End()

	reply, err := e.deps.Responder.Reply(ctx, e.deps.History)
	if err != nil {
		trace.RecordError(span, err)
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// speak synthesizes the text and plays it through the bridge, blocking
// until the audio has drained into the call. The fallback provider
// covers synthesis failures; playback is never skipped silently.
func (e *Engine) speak(parent context.Context, text string) {
	ctx, cancel := e.callContext(parent)
	defer cancel()

	req := &tts.Request{Text: text, Voice: e.config.Voice, Language: e.config.Language}

	ctx, span := trace.InstrumentSynthesize(ctx, e.deps.Synthesizer.Name(), e.config.Voice, len(text))
	resp, err := e.deps.Synthesizer.Synthesize(ctx, req)
	if err != nil || resp == nil || len(resp.PCM) == 0 {
		if err != nil {
			trace.RecordError(span, err)
			log.Printf("[Engine] Synthesis failed, using fallback: %v", err)
		}
		resp, err = e.deps.Fallback.Synthesize(ctx, req)
		if err != nil {
			span.End()
			log.Printf("[Engine] Fallback synthesis failed: %v", err)
			return
		}
	}
	span.End()

	playCtx, playSpan := trace.InstrumentPlayback(parent, len(resp.PCM), resp.SampleRate)
	defer playSpan.End()
	if err := e.deps.Bridge.Playback(playCtx, resp.PCM, resp.SampleRate); err != nil {
		trace.RecordError(playSpan, err)
		log.Printf("[Engine] Playback failed: %v", err)
	}
}

// backToListening resets the accumulator and reopens the caller's
// turn, unless the engine was torn down while a collaborator call was
// in flight.
func (e *Engine) backToListening() {
	if e.closed.Load() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf = nil
	e.deps.Detector.Reset()
	if e.silence != nil {
		e.silence.Stop()
		e.silence = nil
	}
	e.setStateLocked(StateListening)
}

// Close tears the engine down from any state. Idempotent. In-flight
// collaborator calls finish but their continuations observe the
// torn-down flag and stop before mutating state.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.silence != nil {
		e.silence.Stop()
		e.silence = nil
	}
	e.buf = nil
	return nil
}

func (e *Engine) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if e.config.CollaboratorTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, e.config.CollaboratorTimeout)
}

// setStateLocked transitions and notifies. Caller holds e.mu.
func (e *Engine) setStateLocked(s TurnState) {
	if e.state == s {
		return
	}
	log.Printf("[Engine] %s -> %s", e.state, s)
	e.state = s
	if e.onState != nil {
		e.onState(s)
	}
}
