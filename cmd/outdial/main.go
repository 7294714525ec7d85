package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/outdial-ai/outdial/pkg/asr"
	"github.com/outdial-ai/outdial/pkg/audio"
	"github.com/outdial-ai/outdial/pkg/call"
	"github.com/outdial-ai/outdial/pkg/engine"
	"github.com/outdial-ai/outdial/pkg/micbridge"
	"github.com/outdial-ai/outdial/pkg/reason"
	"github.com/outdial-ai/outdial/pkg/telephony"
	"github.com/outdial-ai/outdial/pkg/trace"
	"github.com/outdial-ai/outdial/pkg/transcript"
	"github.com/outdial-ai/outdial/pkg/tts"
	"github.com/outdial-ai/outdial/pkg/vad"
)

func main() {
	godotenv.Load()

	agentID := flag.String("agent", "", "agent identifier to place the call as")
	number := flag.String("number", "", "destination phone number")
	transport := flag.String("transport", "ws", "telephony transport: ws or webrtc")
	flag.Parse()

	if *agentID == "" || *number == "" {
		fmt.Fprintln(os.Stderr, "usage: outdial -agent <id> -number <e164>")
		os.Exit(2)
	}

	ctx := context.Background()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("[Main] Tracing disabled: %v", err)
	}
	defer trace.Shutdown(context.Background())

	if err := run(ctx, *agentID, *number, *transport); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func run(ctx context.Context, agentID, number, transport string) error {
	backendURL := os.Getenv("OUTDIAL_BACKEND_URL")
	credential := os.Getenv("OUTDIAL_CREDENTIAL")

	cfg, err := call.FetchConfig(ctx, backendURL, credential, agentID)
	if err != nil {
		return fmt.Errorf("config fetch: %w", err)
	}
	log.Printf("[Main] Calling as %q (language=%s)", cfg.AgentName, cfg.Language)

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	transcriber, err := asr.NewWhisperTranscriber(openAIKey)
	if err != nil {
		return fmt.Errorf("transcriber: %w", err)
	}

	responder, err := buildResponder(ctx, openAIKey)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}

	session, err := buildSession(transport, cfg.TelephonyToken)
	if err != nil {
		return err
	}

	bridge := micbridge.NewBridge(audio.DefaultSampleRate)
	history := reason.NewHistory(cfg.Instructions, historyCap())
	tl := transcript.NewLog()
	tl.OnAppend(func(e transcript.Entry) {
		fmt.Printf("%s  %-6s  %s\n", e.At.Format("15:04:05"), e.Speaker, e.Text)
	})

	eng := engine.New(engine.Config{
		Greeting: cfg.Greeting,
		Voice:    os.Getenv("OUTDIAL_VOICE"),
		Language: cfg.Language,
	}, engine.Deps{
		Detector:    buildDetector(),
		Transcriber: transcriber,
		Synthesizer: tts.NewOpenAIProvider(openAIKey),
		Fallback:    tts.NewFallbackProvider(audio.DefaultSampleRate),
		Responder:   responder,
		History:     history,
		Transcript:  tl,
		Bridge:      bridge,
	})

	controller := call.NewController(cfg, session, eng, bridge, tl)

	done := make(chan struct{})
	controller.OnStateChange(func(s call.State) {
		if s.Terminal() {
			close(done)
		}
	})

	if err := controller.Start(ctx, number); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-sig:
		log.Printf("[Main] Interrupted, hanging up")
		controller.Hangup()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}

	if err := controller.Err(); err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	log.Printf("[Main] Call ended, %d transcript entries", tl.Len())
	return nil
}

// buildDetector prefers the model-based detector when a model path is
// configured and compiled in, falling back to energy thresholding.
func buildDetector() vad.Detector {
	if modelPath := os.Getenv("OUTDIAL_VAD_MODEL"); modelPath != "" {
		d, err := vad.NewSileroDetector(vad.SileroConfig{
			ModelPath:  modelPath,
			SampleRate: audio.DefaultSampleRate,
		})
		if err == nil {
			return d
		}
		log.Printf("[Main] Model VAD unavailable, using energy detector: %v", err)
	}

	threshold := float64(vad.DefaultThreshold)
	if v := os.Getenv("OUTDIAL_VAD_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = parsed
		}
	}
	return vad.NewEnergyDetector(threshold)
}

func buildResponder(ctx context.Context, openAIKey string) (reason.Responder, error) {
	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		return reason.NewGeminiResponder(ctx, reason.GeminiConfig{
			APIKey: geminiKey,
			Model:  os.Getenv("OUTDIAL_GEMINI_MODEL"),
		})
	}
	return reason.NewOpenAIResponder(reason.OpenAIConfig{
		APIKey: openAIKey,
		Model:  os.Getenv("OUTDIAL_CHAT_MODEL"),
	})
}

func buildSession(transport, token string) (telephony.Session, error) {
	signalingURL := os.Getenv("OUTDIAL_SIGNALING_URL")

	switch transport {
	case "ws":
		return telephony.NewWebSocketSession(telephony.WebSocketConfig{
			SignalingURL: signalingURL,
			Token:        token,
		})
	case "webrtc":
		return telephony.NewWebRTCSession(telephony.WebRTCConfig{
			SignalingURL: signalingURL,
			Token:        token,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func historyCap() int {
	if v := os.Getenv("OUTDIAL_HISTORY_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}
