package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"pqcall/internal/domain"
)

// signalChannelLabel is the data channel used for in-call signaling
// (status nudges, teardown notices). Media tracks are negotiated by the
// clients directly and never touch the routing core.
const signalChannelLabel = "signal"

// WebRTCEngine owns one PeerConnection per active session and exposes only
// the signaling lifecycle hooks the orchestrator consumes.
type WebRTCEngine struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    *zap.Logger

	mu    sync.Mutex
	peers map[domain.SessionID]*peerState
}

// peerState tracks the PeerConnection for a single session. Protected by
// WebRTCEngine.mu.
type peerState struct {
	connection *webrtc.PeerConnection
	signal     *webrtc.DataChannel
}

// NewWebRTCEngine creates an engine with the given ICE servers. An empty
// list works for same-network calls; production deployments configure STUN
// and TURN.
func NewWebRTCEngine(iceServers []string, log *zap.Logger) *WebRTCEngine {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &WebRTCEngine{
		api:    webrtc.NewAPI(),
		config: cfg,
		log:    log,
		peers:  make(map[domain.SessionID]*peerState),
	}
}

// Initialize sets up the PeerConnection and signaling channel for a
// session. Idempotent: re-initializing an active session is a no-op.
func (e *WebRTCEngine) Initialize(ctx context.Context, id domain.SessionID) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapFailure(domain.KindInfrastructure, domain.CodeMediaEngineFail,
			"media init canceled", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.peers[id]; ok {
		return nil
	}

	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return domain.WrapFailure(domain.KindInfrastructure, domain.CodeMediaEngineFail,
			"creating peer connection", err)
	}
	channel, err := pc.CreateDataChannel(signalChannelLabel, nil)
	if err != nil {
		pc.Close()
		return domain.WrapFailure(domain.KindInfrastructure, domain.CodeMediaEngineFail,
			"creating signaling channel", err)
	}

	log := e.log.With(zap.String("session_id", string(id)))
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("peer connection state", zap.String("state", state.String()))
	})

	e.peers[id] = &peerState{connection: pc, signal: channel}
	log.Info("media engine initialized")
	return nil
}

// Teardown closes the session's PeerConnection. Idempotent: unknown
// sessions are not an error, so best-effort termination never fails here.
func (e *WebRTCEngine) Teardown(id domain.SessionID) error {
	e.mu.Lock()
	peer, ok := e.peers[id]
	delete(e.peers, id)
	e.mu.Unlock()

	if !ok {
		return nil
	}
	if err := peer.connection.Close(); err != nil {
		return domain.WrapFailure(domain.KindInfrastructure, domain.CodeMediaEngineFail,
			"closing peer connection", err)
	}
	e.log.Info("media engine torn down", zap.String("session_id", string(id)))
	return nil
}

// ActiveSessions returns the number of live peer connections.
func (e *WebRTCEngine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}

// Close tears down every remaining session.
func (e *WebRTCEngine) Close() {
	e.mu.Lock()
	peers := e.peers
	e.peers = make(map[domain.SessionID]*peerState)
	e.mu.Unlock()

	for id, peer := range peers {
		if err := peer.connection.Close(); err != nil {
			e.log.Warn("closing peer connection at shutdown",
				zap.String("session_id", string(id)), zap.Error(err))
		}
	}
}

var _ domain.MediaEngine = (*WebRTCEngine)(nil)
