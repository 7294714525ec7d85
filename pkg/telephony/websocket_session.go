package telephony

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/outdial-ai/outdial/pkg/audio"
	"github.com/outdial-ai/outdial/pkg/micbridge"
)

// WebSocketConfig holds configuration for a websocket signalling session.
type WebSocketConfig struct {
	// SignalingURL is the provider's websocket endpoint (wss://...).
	SignalingURL string

	// Token authenticates the session; passed as a bearer credential.
	Token string

	// DialTimeout bounds the signalling connect (default 15s).
	DialTimeout time.Duration
}

// signalMessage is the provider's JSON wire format. Media payloads are
// base64 μ-law.
type signalMessage struct {
	Event  string        `json:"event"`
	CallID string        `json:"callId,omitempty"`
	To     string        `json:"to,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Media  *signalMedia  `json:"media,omitempty"`
}

type signalMedia struct {
	Encoding   string `json:"encoding,omitempty"` // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// WebSocketSession implements Session over a token-authenticated
// websocket signalling connection carrying base64 μ-law media frames.
type WebSocketSession struct {
	config  WebSocketConfig
	conn    *websocket.Conn
	handler EventHandler
	callID  string

	micSource micbridge.Source

	closed     atomic.Bool
	terminated atomic.Bool
	closeMu    sync.Mutex
	closeWg    sync.WaitGroup
	stopWrite  chan struct{}

	// gorilla/websocket requires synchronized writes.
	writeMu sync.Mutex
}

// NewWebSocketSession creates an unconnected session.
func NewWebSocketSession(config WebSocketConfig) (*WebSocketSession, error) {
	if config.SignalingURL == "" {
		return nil, fmt.Errorf("signaling URL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("telephony token is required")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 15 * time.Second
	}

	return &WebSocketSession{
		config:    config,
		callID:    uuid.NewString(),
		stopWrite: make(chan struct{}),
	}, nil
}

// RegisterHandler sets the event handler.
func (s *WebSocketSession) RegisterHandler(h EventHandler) {
	s.handler = h
}

// CallID returns the session's call identifier.
func (s *WebSocketSession) CallID() string {
	return s.callID
}

// Dial connects to the signalling endpoint and places the call.
func (s *WebSocketSession) Dial(ctx context.Context, number string) error {
	if s.handler == nil {
		s.handler = &NoOpEventHandler{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.config.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.config.SignalingURL, header)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}
	s.conn = conn

	invite := signalMessage{Event: "invite", CallID: s.callID, To: number}
	if err := s.writeJSON(invite); err != nil {
		conn.Close()
		return fmt.Errorf("invite failed: %w", err)
	}

	s.closeWg.Add(1)
	go s.readPump()

	log.Printf("[Telephony] Dialing %s (call %s)", number, s.callID)
	return nil
}

// Hangup sends a bye and tears the session down.
func (s *WebSocketSession) Hangup() error {
	if s.closed.Load() {
		return nil
	}
	if err := s.writeJSON(signalMessage{Event: "bye", CallID: s.callID}); err != nil {
		log.Printf("[Telephony] bye failed: %v", err)
	}
	s.terminate("local hangup")
	return s.Close()
}

// Close releases the connection and media resources. Idempotent.
func (s *WebSocketSession) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	log.Printf("[Telephony] Closing session %s", s.callID)

	close(s.stopWrite)
	if s.conn != nil {
		s.conn.Close()
	}
	s.closeWg.Wait()

	if s.micSource != nil {
		s.micSource.Close()
		s.micSource = nil
	}
	return nil
}

// readPump consumes signalling messages until the socket closes.
// Before delivering any event that ends the call it leaves the wait
// group: the handler's teardown calls Close, and Close waits on this
// goroutine.
func (s *WebSocketSession) readPump() {
	var exited sync.Once
	done := func() { exited.Do(s.closeWg.Done) }
	defer done()

	for {
		if s.closed.Load() {
			return
		}

		var msg signalMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.closed.Load() {
				return
			}
			done()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Telephony] Read error: %v", err)
				s.handler.OnError(fmt.Errorf("signalling connection lost: %w", err))
			}
			s.terminate("connection lost")
			return
		}

		if reason, ended := s.handleMessage(&msg); ended {
			done()
			s.terminate(reason)
			return
		}
	}
}

// handleMessage dispatches one signalling event. A true result means
// the call is over and the caller must fire termination itself.
func (s *WebSocketSession) handleMessage(msg *signalMessage) (string, bool) {
	switch msg.Event {
	case "connected", "ringing":
		s.handler.OnConnected()

	case "answered":
		rate := audio.DefaultSampleRate
		if msg.Media != nil && msg.Media.SampleRate > 0 {
			rate = msg.Media.SampleRate
		}
		s.startMedia(rate)
		s.handler.OnAnswered(rate)

	case "media":
		if msg.Media == nil || msg.Media.Payload == "" {
			return "", false
		}
		mulaw, err := audio.DecodeChunked(msg.Media.Payload)
		if err != nil {
			log.Printf("[Telephony] Bad media payload: %v", err)
			return "", false
		}
		s.handler.OnAudioFrame(audio.MuLawToPCM(mulaw))

	case "bye":
		reason := msg.Reason
		if reason == "" {
			reason = "remote hangup"
		}
		return reason, true

	default:
		log.Printf("[Telephony] Ignoring event %q", msg.Event)
	}
	return "", false
}

// startMedia acquires the microphone stream and begins pushing
// outgoing frames. An installed virtual microphone satisfies the
// acquisition; this code neither knows nor cares.
func (s *WebSocketSession) startMedia(sampleRate int) {
	src, err := micbridge.Acquire(context.Background(), micbridge.Constraints{Audio: true})
	if err != nil {
		s.handler.OnError(fmt.Errorf("microphone acquisition failed: %w", err))
		s.terminate("no outgoing media")
		return
	}
	s.micSource = src

	s.closeWg.Add(1)
	go s.writePump(src)
}

// writePump pushes one μ-law frame every 20ms.
func (s *WebSocketSession) writePump(src micbridge.Source) {
	var exited sync.Once
	done := func() { exited.Do(s.closeWg.Done) }
	defer done()

	ticker := time.NewTicker(audio.FrameDurationMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopWrite:
			return
		case <-ticker.C:
			frame, err := src.ReadFrame()
			if err != nil {
				if s.closed.Load() || s.terminated.Load() {
					return
				}
				done()
				s.handler.OnError(fmt.Errorf("microphone stream failed: %w", err))
				s.terminate("outgoing media failed")
				return
			}
			msg := signalMessage{
				Event:  "media",
				CallID: s.callID,
				Media: &signalMedia{
					Encoding: "audio/x-mulaw",
					Payload:  audio.EncodeChunked(audio.PCMToMuLaw(frame)),
				},
			}
			if err := s.writeJSON(msg); err != nil {
				if s.closed.Load() || s.terminated.Load() {
					return
				}
				done()
				s.handler.OnError(fmt.Errorf("media write failed: %w", err))
				s.terminate("outgoing media failed")
				return
			}
		}
	}
}

func (s *WebSocketSession) writeJSON(msg signalMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(msg)
}

// terminate fires OnTerminated exactly once.
func (s *WebSocketSession) terminate(reason string) {
	if s.terminated.CompareAndSwap(false, true) {
		s.handler.OnTerminated(reason)
	}
}

var _ Session = (*WebSocketSession)(nil)
