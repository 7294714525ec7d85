package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for call and turn spans.
const (
	AttrCallID       = "call.id"
	AttrCallAgent    = "call.agent"
	AttrCallNumber   = "call.number"
	AttrTurnState    = "turn.state"
	AttrASRProvider  = "asr.provider"
	AttrTTSProvider  = "tts.provider"
	AttrTTSVoice     = "tts.voice"
	AttrReasonModel  = "reason.model"
	AttrAudioSamples = "audio.samples"
)

// InstrumentDial creates a span covering signalling and the outbound
// dial.
func InstrumentDial(ctx context.Context, callID, agent, number string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call.dial",
		trace.WithAttributes(
			attribute.String(AttrCallID, callID),
			attribute.String(AttrCallAgent, agent),
			attribute.String(AttrCallNumber, number),
		),
	)
}

// InstrumentTurn creates a span covering one full caller turn.
func InstrumentTurn(ctx context.Context, audioBytes int) (context.Context, trace.Span) {
	return StartSpan(ctx, "call.turn",
		trace.WithAttributes(
			attribute.Int(AttrAudioSamples, audioBytes/2),
		),
	)
}

// InstrumentTranscribe creates a span for a transcription request.
func InstrumentTranscribe(ctx context.Context, provider string, audioBytes int) (context.Context, trace.Span) {
	return StartSpan(ctx, "turn.transcribe",
		trace.WithAttributes(
			attribute.String(AttrASRProvider, provider),
			attribute.Int("audio.size", audioBytes),
		),
	)
}

// InstrumentReason creates a span for a reasoning request.
func InstrumentReason(ctx context.Context, historyLen int) (context.Context, trace.Span) {
	return StartSpan(ctx, "turn.reason",
		trace.WithAttributes(
			attribute.Int("history.length", historyLen),
		),
	)
}

// InstrumentSynthesize creates a span for a synthesis request.
func InstrumentSynthesize(ctx context.Context, provider, voice string, textLen int) (context.Context, trace.Span) {
	return StartSpan(ctx, "turn.synthesize",
		trace.WithAttributes(
			attribute.String(AttrTTSProvider, provider),
			attribute.String(AttrTTSVoice, voice),
			attribute.Int("text.length", textLen),
		),
	)
}

// InstrumentPlayback creates a span covering audio playback into the
// call.
func InstrumentPlayback(ctx context.Context, audioBytes, sampleRate int) (context.Context, trace.Span) {
	return StartSpan(ctx, "turn.playback",
		trace.WithAttributes(
			attribute.Int("audio.size", audioBytes),
			attribute.Int("audio.sample_rate", sampleRate),
		),
	)
}

// RecordError records an error on a span and marks its status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
