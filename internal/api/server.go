package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tguillem/whisperstream/internal/logger"
	"github.com/tguillem/whisperstream/internal/protocol"
	"github.com/tguillem/whisperstream/internal/stream"
	"github.com/tguillem/whisperstream/internal/webrtc"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now (can be restricted later)
		return true
	},
}

// Server handles HTTP and WebSocket requests
type Server struct {
	bindAddr      string
	logger        *logger.ContextLogger
	server        *http.Server
	webrtcManager *webrtc.Manager
}

// New creates a new API server
func New(bindAddr string, log *logger.Logger, webrtcMgr *webrtc.Manager) *Server {
	return &Server{
		bindAddr:      bindAddr,
		logger:        log.With("api"),
		webrtcManager: webrtcMgr,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stream/signal", s.handleSignaling)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.bindAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server on %s", s.bindAddr)
	return s.server.ListenAndServe()
}

// Stop closes the server immediately, including active connections
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSignaling handles WebRTC signaling over WebSocket
func (s *Server) handleSignaling(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	defer conn.Close()

	peerID := uuid.New().String()
	s.logger.Info("New signaling connection from peer %s", peerID)

	var peer *webrtc.PeerConnection

	peer, err = s.webrtcManager.CreatePeerConnection(peerID, func(msg *protocol.Message) {
		s.handleDataChannelMessage(peerID, peer, msg)
	})
	if err != nil {
		s.logger.Error("Failed to create peer connection: %v", err)
		return
	}
	defer s.webrtcManager.RemovePeerConnection(peerID)

	peer.GatherICECandidates(func(candidateJSON string) {
		msg := protocol.SignalingMessage{
			Type: "ice",
			Data: json.RawMessage(candidateJSON),
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Error("Failed to send ICE candidate: %v", err)
		}
	})

	for {
		var msg protocol.SignalingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Debug("WebSocket read error (peer %s): %v", peerID, err)
			break
		}

		s.logger.Debug("Received signaling message type: %s from peer %s", msg.Type, peerID)

		switch msg.Type {
		case "offer":
			answer, err := peer.CreateAnswer(string(msg.Data))
			if err != nil {
				s.logger.Error("Failed to create answer: %v", err)
				continue
			}

			response := protocol.SignalingMessage{
				Type: "answer",
				Data: json.RawMessage(answer),
			}
			if err := conn.WriteJSON(response); err != nil {
				s.logger.Error("Failed to send answer: %v", err)
			}

		case "ice":
			if err := peer.AddICECandidate(string(msg.Data)); err != nil {
				s.logger.Error("Failed to add ICE candidate: %v", err)
			}

		default:
			s.logger.Warn("Unknown signaling message type: %s", msg.Type)
		}
	}

	s.logger.Info("Signaling connection closed for peer %s", peerID)
}

// sessionEvents builds the stream.Events that forward every host-facing
// event (spec §6) to peer over its DataChannel as the corresponding
// protocol message.
func (s *Server) sessionEvents(peerID string, peer *webrtc.PeerConnection) stream.Events {
	send := func(msgType protocol.MessageType, data interface{}) {
		payload, err := json.Marshal(data)
		if err != nil {
			s.logger.Error("Failed to marshal %s for peer %s: %v", msgType, peerID, err)
			return
		}
		msg := &protocol.Message{
			Type:      msgType,
			Timestamp: time.Now().UnixMilli(),
			Data:      payload,
		}
		if err := peer.SendMessage(msg); err != nil {
			s.logger.Error("Failed to send %s to peer %s: %v", msgType, peerID, err)
		}
	}

	return stream.Events{
		Loaded: func(slot int, gpuDescription string, gpuActive bool) {
			send(protocol.MessageTypeLoaded, protocol.LoadedData{
				Slot: slot, GPUDescription: gpuDescription, GPUActive: gpuActive,
			})
		},
		Progress: func(percent int) {
			send(protocol.MessageTypeProgress, protocol.ProgressData{Percent: percent})
		},
		NewSegment: func(seg stream.Segment) {
			s.logger.Info("peer %s transcript: %q", peerID, seg.Text)
			send(protocol.MessageTypeTranscriptFinal, protocol.TranscriptData{
				Text:        seg.Text,
				IsFinal:     true,
				T0Ms:        seg.T0Ms,
				T1Ms:        seg.T1Ms,
				LanguageTag: seg.LanguageTag,
			})
		},
		StreamComplete: func(success bool) {
			send(protocol.MessageTypeStreamComplete, protocol.StreamCompleteData{Success: success})
		},
		Error: func(message string) {
			s.logger.Error("peer %s stream error: %s", peerID, message)
			send(protocol.MessageTypeError, protocol.ErrorData{Code: "stream_error", Message: message})
		},
	}
}

// handleDataChannelMessage handles messages received over the DataChannel
func (s *Server) handleDataChannelMessage(peerID string, peer *webrtc.PeerConnection, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeControlPing:
		pongMsg := &protocol.Message{
			Type:      protocol.MessageTypeControlPong,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := peer.SendMessage(pongMsg); err != nil {
			s.logger.Error("Failed to send pong: %v", err)
		}

	case protocol.MessageTypeAudioChunk:
		var audioData protocol.AudioChunkData
		if err := json.Unmarshal(msg.Data, &audioData); err != nil {
			s.logger.Error("Failed to unmarshal audio chunk: %v", err)
			return
		}

		sess := s.webrtcManager.GetPeerSession(peerID)
		if sess == nil {
			s.logger.Debug("No active session for peer %s, dropping audio chunk", peerID)
			return
		}
		sess.PushAudio(pcm16ToFloat32(audioData.Data))

	case protocol.MessageTypeControlLoad:
		s.logger.Info("Received load command from peer %s (sessions load their model(s) at creation)", peerID)

	case protocol.MessageTypeControlStart:
		s.logger.Info("Received start command from peer %s", peerID)

		var controlData protocol.ControlStartData
		if msg.Data != nil {
			if err := json.Unmarshal(msg.Data, &controlData); err != nil {
				s.logger.Error("Failed to parse control start data: %v", err)
				return
			}
		}
		if controlData.NumThreads <= 0 {
			controlData.NumThreads = 4
		}
		if controlData.Language == "" {
			controlData.Language = "auto"
		}

		sess, err := s.webrtcManager.CreateSessionForPeer(peerID, s.sessionEvents(peerID, peer))
		if err != nil {
			s.logger.Error("Failed to create session: %v", err)
			return
		}

		cfg := stream.DefaultConfig()
		if controlData.LiveMode {
			cfg = stream.LiveConfig()
		}
		cfg.NumThreads = controlData.NumThreads
		cfg.Language = controlData.Language
		cfg.Translate = controlData.Translate
		cfg.LiveMode = controlData.LiveMode
		if controlData.MinChunkMs > 0 {
			cfg.MinChunkMs = controlData.MinChunkMs
		}
		if controlData.ChunkExtendMs > 0 {
			cfg.ChunkExtendMs = controlData.ChunkExtendMs
		}
		if controlData.OverlapMs > 0 {
			cfg.OverlapMs = controlData.OverlapMs
		}
		if controlData.MinSilenceMs > 0 {
			cfg.MinSilenceMs = controlData.MinSilenceMs
		}
		if controlData.VADThreshold > 0 {
			cfg.VADThreshold = controlData.VADThreshold
		}

		sess.Start(cfg)
		s.logger.Info("Stream started for peer %s", peerID)

	case protocol.MessageTypeControlSetDuration:
		var data protocol.ControlSetDurationData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.logger.Error("Failed to parse set_duration: %v", err)
			return
		}
		if sess := s.webrtcManager.GetPeerSession(peerID); sess != nil {
			sess.SetDuration(data.TotalDurationMs)
		}

	case protocol.MessageTypeControlUpdateLanguage:
		var data protocol.ControlUpdateLanguageData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.logger.Error("Failed to parse update_language: %v", err)
			return
		}
		if sess := s.webrtcManager.GetPeerSession(peerID); sess != nil {
			sess.UpdateLanguage(data.Language)
		}

	case protocol.MessageTypeControlStop:
		s.logger.Info("Received stop command from peer %s", peerID)
		if sess := s.webrtcManager.GetPeerSession(peerID); sess != nil {
			sess.Stop()
		}

	default:
		s.logger.Warn("Unknown message type: %s", msg.Type)
	}
}

// pcm16ToFloat32 converts little-endian 16-bit PCM bytes to normalized
// float32 samples in [-1.0, 1.0].
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}
