package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/outdial-ai/outdial/pkg/audio"
	"github.com/outdial-ai/outdial/pkg/micbridge"
)

// Telephony gateways negotiate narrowband G.711; PCMU at 8kHz mono.
const webrtcSampleRate = audio.DefaultSampleRate

// WebRTCConfig holds configuration for a WebRTC media session. The
// offer/answer exchange runs over a token-authenticated HTTP endpoint.
type WebRTCConfig struct {
	// SignalingURL is the gateway's offer/answer endpoint.
	SignalingURL string

	// Token authenticates the session; passed as a bearer credential.
	Token string

	// DialTimeout bounds the signalling exchange (default 15s).
	DialTimeout time.Duration
}

// offerRequest is posted to the gateway; the answer comes back as JSON.
type offerRequest struct {
	CallID string `json:"callId"`
	To     string `json:"to"`
	SDP    string `json:"sdp"`
}

type answerResponse struct {
	SDP string `json:"sdp"`
}

// WebRTCSession implements Session with a pion peer connection
// carrying a G.711 PCMU audio track in each direction.
type WebRTCSession struct {
	config  WebRTCConfig
	handler EventHandler
	callID  string

	pc         *webrtc.PeerConnection
	localTrack *webrtc.TrackLocalStaticSample

	micSource micbridge.Source

	answered atomic.Bool
	closed   atomic.Bool

	terminated atomic.Bool
	closeMu    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	httpClient *http.Client
}

// NewWebRTCSession creates an unconnected session.
func NewWebRTCSession(config WebRTCConfig) (*WebRTCSession, error) {
	if config.SignalingURL == "" {
		return nil, fmt.Errorf("signaling URL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("telephony token is required")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WebRTCSession{
		config:     config,
		callID:     uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		httpClient: &http.Client{Timeout: config.DialTimeout},
	}, nil
}

// RegisterHandler sets the event handler.
func (s *WebRTCSession) RegisterHandler(h EventHandler) {
	s.handler = h
}

// CallID returns the session's call identifier.
func (s *WebRTCSession) CallID() string {
	return s.callID
}

// Dial creates the peer connection, exchanges SDP with the gateway,
// and starts media once the connection comes up.
func (s *WebRTCSession) Dial(ctx context.Context, number string) error {
	if s.handler == nil {
		s.handler = &NoOpEventHandler{}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: webrtcSampleRate,
			Channels:  1,
		},
		PayloadType: 0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("codec registration failed: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	s.pc = pc

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: webrtcSampleRate, Channels: 1},
		"audio", "outdial-"+s.callID,
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("local track failed: %w", err)
	}
	s.localTrack = track
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return fmt.Errorf("add track failed: %w", err)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnecting:
			s.handler.OnConnected()
		case webrtc.PeerConnectionStateConnected:
			if s.answered.CompareAndSwap(false, true) {
				s.startMedia()
				s.handler.OnAnswered(webrtcSampleRate)
			}
		case webrtc.PeerConnectionStateFailed:
			s.handler.OnError(errors.New("media connection failed"))
			s.terminate("media failure")
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			s.terminate("connection closed")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[Telephony] Remote track %s (%s)", track.ID(), track.Codec().MimeType)
		s.wg.Add(1)
		go s.readRemoteAudio(func() ([]byte, error) {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return nil, err
			}
			return pkt.Payload, nil
		})
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create offer failed: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("set local description failed: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	answer, err := s.exchangeSDP(ctx, number, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("set remote description failed: %w", err)
	}

	log.Printf("[Telephony] Dialing %s over WebRTC (call %s)", number, s.callID)
	return nil
}

// exchangeSDP posts the offer to the gateway and returns the answer SDP.
func (s *WebRTCSession) exchangeSDP(ctx context.Context, number, sdp string) (string, error) {
	body, err := json.Marshal(offerRequest{CallID: s.callID, To: number, SDP: sdp})
	if err != nil {
		return "", fmt.Errorf("marshal offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.SignalingURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signalling exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gateway rejected offer: status %d: %s", resp.StatusCode, data)
	}

	var answer answerResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("decode answer: %w", err)
	}
	if answer.SDP == "" {
		return "", fmt.Errorf("gateway returned empty answer")
	}
	return answer.SDP, nil
}

// readRemoteAudio decodes inbound PCMU packets to 16-bit PCM frames.
// It leaves the wait group before firing termination: the handler may
// call Close, which waits on this goroutine.
func (s *WebRTCSession) readRemoteAudio(readRTP func() ([]byte, error)) {
	var exited sync.Once
	done := func() { exited.Do(s.wg.Done) }
	defer done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		payload, err := readRTP()
		if err != nil {
			if err == io.EOF {
				done()
				s.terminate("remote track closed")
				return
			}
			if s.closed.Load() {
				return
			}
			log.Printf("[Telephony] RTP read error: %v", err)
			continue
		}
		if len(payload) == 0 {
			continue
		}

		s.handler.OnAudioFrame(audio.MuLawToPCM(payload))
	}
}

// startMedia acquires the microphone stream and begins pushing
// outgoing samples onto the local track.
func (s *WebRTCSession) startMedia() {
	src, err := micbridge.Acquire(s.ctx, micbridge.Constraints{Audio: true})
	if err != nil {
		s.handler.OnError(fmt.Errorf("microphone acquisition failed: %w", err))
		s.terminate("no outgoing media")
		return
	}
	s.micSource = src

	s.wg.Add(1)
	go s.writeLocalAudio(src)
}

// writeLocalAudio pushes one μ-law sample every 20ms.
func (s *WebRTCSession) writeLocalAudio(src micbridge.Source) {
	var exited sync.Once
	done := func() { exited.Do(s.wg.Done) }
	defer done()

	ticker := time.NewTicker(audio.FrameDurationMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
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
			sample := media.Sample{
				Data:     audio.PCMToMuLaw(frame),
				Duration: audio.FrameDurationMs * time.Millisecond,
			}
			if err := s.localTrack.WriteSample(sample); err != nil {
				if s.closed.Load() || s.terminated.Load() {
					return
				}
				done()
				s.handler.OnError(fmt.Errorf("sample write failed: %w", err))
				s.terminate("outgoing media failed")
				return
			}
		}
	}
}

// Hangup tears the peer connection down.
func (s *WebRTCSession) Hangup() error {
	if s.closed.Load() {
		return nil
	}
	s.terminate("local hangup")
	return s.Close()
}

// Close releases the peer connection and media resources. Idempotent.
func (s *WebRTCSession) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	log.Printf("[Telephony] Closing WebRTC session %s", s.callID)

	s.cancel()
	if s.pc != nil {
		s.pc.Close()
	}
	s.wg.Wait()

	if s.micSource != nil {
		s.micSource.Close()
		s.micSource = nil
	}
	return nil
}

// terminate fires OnTerminated exactly once.
func (s *WebRTCSession) terminate(reason string) {
	if s.terminated.CompareAndSwap(false, true) {
		s.handler.OnTerminated(reason)
	}
}

var _ Session = (*WebRTCSession)(nil)
