package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/tguillem/whisperstream/internal/audio"
	"github.com/tguillem/whisperstream/internal/logger"
	"github.com/tguillem/whisperstream/internal/metrics"
	"github.com/tguillem/whisperstream/internal/protocol"
	"github.com/tguillem/whisperstream/internal/stream"
)

// Manager handles WebRTC peer connections
type Manager struct {
	logger      *logger.ContextLogger
	peerConns   map[string]*PeerConnection
	peerConnsMu sync.RWMutex
	config      webrtc.Configuration

	// Shared across every peer session's Controller, so sessions naming the
	// same model path reuse one set of loaded weights instead of each peer
	// paying the load cost.
	loader  stream.EngineLoader
	metrics *metrics.StreamMetrics

	modelConfig      ManagerConfig
	rnnoiseModelPath string
	enableDebugWAV   bool
}

// ModelConfig names the model(s) every peer session loads into its
// Controller's slots.
type ModelConfig struct {
	ModelPath      string
	Slot1ModelPath string
	Threads        int
	UseGPU         bool
}

// PeerConnection represents a single WebRTC peer connection
type PeerConnection struct {
	ID          string
	pc          *webrtc.PeerConnection
	dataChannel *webrtc.DataChannel
	session     *Session // Each peer has their own
	logger      *logger.ContextLogger
	onMessage   func(msg *protocol.Message)
}

// ManagerConfig contains configuration for creating peer sessions
type ManagerConfig struct {
	ModelConfig      ModelConfig
	Language         string
	Translate        bool
	RNNoiseModelPath string
	EnableDebugWAV   bool
	Logger           *logger.Logger
}

// New creates a new WebRTC manager. m may be nil, which disables metrics.
func New(log *logger.Logger, iceServers []webrtc.ICEServer, config ManagerConfig, m *metrics.StreamMetrics) *Manager {
	webrtcConfig := webrtc.Configuration{
		ICEServers: iceServers,
	}

	return &Manager{
		logger:           log.With("webrtc"),
		peerConns:        make(map[string]*PeerConnection),
		config:           webrtcConfig,
		loader:           stream.NewWhisperLoader(log),
		metrics:          m,
		modelConfig:      config,
		rnnoiseModelPath: config.RNNoiseModelPath,
		enableDebugWAV:   config.EnableDebugWAV,
	}
}

// Session wraps one peer's Controller, the live audio feed driving it, and
// the peer's optional noise-suppression stage and debug WAV dump.
//
// Grounded on server/internal/transcription/pipeline.go's
// TranscriptionPipeline, reworked around internal/stream.Controller instead
// of the teacher's SmartChunker + accumulator pipeline.
type Session struct {
	peerID  string
	ctrl    *stream.Controller
	source  *audio.LiveSource
	rnnoise *audio.RNNoiseProcessor
	debug   *audio.DebugWriter
	cancel  context.CancelFunc
	log     *logger.ContextLogger
}

// PushAudio feeds newly arrived PCM samples (already float32, 16kHz mono)
// into the session, running them through noise suppression first if
// configured.
func (s *Session) PushAudio(samples []float32) {
	if s.debug != nil {
		s.debug.Write(samples)
	}
	if s.rnnoise == nil {
		s.source.Push(samples)
		return
	}

	ints := make([]int16, len(samples))
	for i, v := range samples {
		ints[i] = int16(v * 32767.0)
	}
	denoised, err := s.rnnoise.ProcessChunk(ints)
	if err != nil {
		s.log.Warn("rnnoise processing failed, using raw audio: %v", err)
		s.source.Push(samples)
		return
	}
	if len(denoised) == 0 {
		return
	}
	out := make([]float32, len(denoised))
	for i, v := range denoised {
		out[i] = float32(v) / 32768.0
	}
	s.source.Push(out)
}

// Start begins a stream run over this session's live audio feed.
func (s *Session) Start(cfg stream.Config) uint32 {
	return s.ctrl.Start(s.source.Read, nil, nil, cfg)
}

// Stop requests the in-flight stream run terminate.
func (s *Session) Stop() { s.ctrl.Stop() }

// UpdateLanguage overrides the decode language mid-stream.
func (s *Session) UpdateLanguage(lang string) { s.ctrl.UpdateLanguage(lang) }

// SetDuration enables (nonzero) or disables (0) progress reporting.
func (s *Session) SetDuration(totalDurationMs int64) { s.ctrl.SetDuration(totalDurationMs) }

// Close tears the session down: closes the live feed (unblocking any
// pending Read), flushes the debug dump if one was recording, and shuts
// down the Controller.
func (s *Session) Close() {
	s.source.Close()
	if s.debug != nil {
		if err := s.debug.Close(stream.SampleRate); err != nil {
			s.log.Warn("failed to write debug wav: %v", err)
		}
	}
	s.ctrl.Shutdown()
	s.cancel()
}

// CreateSessionForPeer builds a Controller-backed session for peerID,
// loading the configured model(s) into its slots and wiring events back to
// the caller. Call Session.Start once the host is ready to begin streaming.
func (m *Manager) CreateSessionForPeer(peerID string, events stream.Events) (*Session, error) {
	m.peerConnsMu.RLock()
	peer, exists := m.peerConns[peerID]
	m.peerConnsMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("peer %s not found", peerID)
	}

	ctrl := stream.NewController(m.loader, events)
	ctrl.SetMetrics(m.metrics)
	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)

	ctrl.LoadModel(0, m.modelConfig.ModelConfig.ModelPath, m.modelConfig.ModelConfig.Threads, m.modelConfig.ModelConfig.UseGPU)
	if m.modelConfig.ModelConfig.Slot1ModelPath != "" {
		ctrl.LoadModel(1, m.modelConfig.ModelConfig.Slot1ModelPath, m.modelConfig.ModelConfig.Threads, m.modelConfig.ModelConfig.UseGPU)
	}

	sess := &Session{
		peerID: peerID,
		ctrl:   ctrl,
		source: audio.NewLiveSource(),
		cancel: cancel,
		log:    m.logger.With("session:" + peerID),
	}

	if m.rnnoiseModelPath != "" {
		rn, err := audio.NewRNNoiseProcessor(m.rnnoiseModelPath, m.modelConfig.Logger)
		if err != nil {
			m.logger.Warn("failed to init rnnoise for peer %s, continuing without it: %v", peerID, err)
		} else {
			sess.rnnoise = rn
		}
	}
	if m.enableDebugWAV {
		sess.debug = audio.NewDebugWriter(fmt.Sprintf("debug-%s.wav", peerID))
	}

	peer.session = sess
	m.logger.Info("created session for peer %s", peerID)
	return sess, nil
}

// GetPeerSession returns the session for a specific peer
func (m *Manager) GetPeerSession(peerID string) *Session {
	m.peerConnsMu.RLock()
	defer m.peerConnsMu.RUnlock()

	if peer, exists := m.peerConns[peerID]; exists {
		return peer.session
	}
	return nil
}

// CreatePeerConnection creates a new peer connection
func (m *Manager) CreatePeerConnection(id string, onMessage func(msg *protocol.Message)) (*PeerConnection, error) {
	m.peerConnsMu.Lock()
	defer m.peerConnsMu.Unlock()

	if _, exists := m.peerConns[id]; exists {
		return nil, fmt.Errorf("peer connection %s already exists", id)
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	peer := &PeerConnection{
		ID:        id,
		pc:        pc,
		logger:    m.logger,
		onMessage: onMessage,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		peer.logger.Info("Peer %s connection state: %s", id, state.String())

		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			m.RemovePeerConnection(id)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		peer.logger.Debug("Peer %s ICE state: %s", id, state.String())
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		peer.logger.Info("DataChannel '%s' opened by peer %s", dc.Label(), id)
		peer.dataChannel = dc

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			peer.handleMessage(msg.Data)
		})

		dc.OnOpen(func() {
			peer.logger.Info("DataChannel '%s' is open", dc.Label())
		})

		dc.OnClose(func() {
			peer.logger.Info("DataChannel '%s' closed", dc.Label())
		})

		dc.OnError(func(err error) {
			peer.logger.Error("DataChannel error: %v", err)
		})
	})

	m.peerConns[id] = peer
	m.logger.Info("Created peer connection for %s", id)

	return peer, nil
}

// RemovePeerConnection removes a peer connection
func (m *Manager) RemovePeerConnection(id string) {
	m.peerConnsMu.Lock()
	defer m.peerConnsMu.Unlock()

	if peer, exists := m.peerConns[id]; exists {
		if peer.session != nil {
			peer.session.Close()
			m.logger.Info("closed session for peer %s", id)
		}

		if peer.pc != nil {
			peer.pc.Close()
		}
		delete(m.peerConns, id)
		m.logger.Info("Removed peer connection %s", id)
	}
}

// GetPeerConnection returns a peer connection by ID
func (m *Manager) GetPeerConnection(id string) (*PeerConnection, bool) {
	m.peerConnsMu.RLock()
	defer m.peerConnsMu.RUnlock()
	peer, exists := m.peerConns[id]
	return peer, exists
}

// CreateOffer creates a WebRTC offer
func (p *PeerConnection) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}

	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return "", fmt.Errorf("failed to marshal offer: %w", err)
	}

	return string(offerJSON), nil
}

// CreateAnswer creates a WebRTC answer from an offer
func (p *PeerConnection) CreateAnswer(offerJSON string) (string, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(offerJSON), &offer); err != nil {
		return "", fmt.Errorf("failed to unmarshal offer: %w", err)
	}

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return "", fmt.Errorf("failed to marshal answer: %w", err)
	}

	return string(answerJSON), nil
}

// AddICECandidate adds an ICE candidate
func (p *PeerConnection) AddICECandidate(candidateJSON string) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return fmt.Errorf("failed to unmarshal ICE candidate: %w", err)
	}

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}

	return nil
}

// SendMessage sends a message over the DataChannel
func (p *PeerConnection) SendMessage(msg *protocol.Message) error {
	if p.dataChannel == nil {
		return fmt.Errorf("data channel not ready")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.dataChannel.Send(data)
}

// handleMessage handles incoming DataChannel messages
func (p *PeerConnection) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Error("Failed to unmarshal message: %v", err)
		return
	}

	p.logger.Debug("Received message type: %s", msg.Type)

	if p.onMessage != nil {
		p.onMessage(&msg)
	}
}

// GatherICECandidates sets up ICE candidate gathering
func (p *PeerConnection) GatherICECandidates(onCandidate func(string)) {
	p.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}

		candidateJSON, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			p.logger.Error("Failed to marshal ICE candidate: %v", err)
			return
		}

		onCandidate(string(candidateJSON))
	})
}

// Close closes the peer connection
func (p *PeerConnection) Close() error {
	if p.pc != nil {
		return p.pc.Close()
	}
	return nil
}
