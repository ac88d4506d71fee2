package midtier

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/voicekit/midtier-go/events"
	"github.com/voicekit/midtier-go/internal/websocket"
)

// frameWriter is the send half of one relay leg. Tests substitute fakes
// for the real websocket connections.
type frameWriter interface {
	WriteText(data []byte)
}

// pendingToolCall is an in-flight tool call announced by the upstream
// endpoint, remembered until its completion event arrives.
type pendingToolCall struct {
	callID         string
	previousItemID string
}

// session owns one client connection and one upstream connection and the
// state shared by the two forwarding directions. The pending map is only
// ever touched by the upstream loop, so it needs no locking.
type session struct {
	mt       *MiddleTier
	ctx      context.Context
	logger   *slog.Logger
	client   frameWriter
	upstream frameWriter
	pending  map[string]pendingToolCall
}

func (mt *MiddleTier) newSession() *session {
	id, _ := nanoid.New()
	return &session{
		mt:      mt,
		ctx:     context.Background(),
		logger:  mt.cfg.logger.With(slog.String("session", id)),
		pending: make(map[string]pendingToolCall),
	}
}

func (s *session) run(w http.ResponseWriter, r *http.Request) {
	client, err := websocket.Accept(w, r, websocket.Config{Logger: s.logger})
	if err != nil {
		s.logger.Error("client upgrade failed", slog.Any("err", err))
		return
	}
	s.client = client

	// The upgrade hijacks the TCP connection, so the request context is
	// no longer tied to the session's lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.ctx = ctx

	upstream, err := s.dialUpstream(ctx, r)
	if err != nil {
		s.logger.Error("upstream connect failed", slog.Any("err", err))
		s.sendClient(events.ErrorNotice{
			Type:    events.TypeError,
			Message: "Failed to connect to the realtime service. Please check your credentials and try again.",
		})
		s.closeConn(client)
		return
	}
	s.upstream = upstream

	go client.Serve(ctx, s.handleClientFrame, nil)
	go upstream.Serve(ctx, s.handleUpstreamFrame, nil)

	// Either side closing closes the other.
	select {
	case <-client.Done():
		s.logger.Info("client disconnected")
	case <-upstream.Done():
		s.logger.Info("upstream disconnected")
	}

	s.closeConn(upstream)
	s.closeConn(client)
}

func (s *session) dialUpstream(ctx context.Context, r *http.Request) (*websocket.Conn, error) {
	headers, err := s.mt.upstreamHeaders(ctx, r)
	if err != nil {
		return nil, err
	}

	url := s.mt.realtimeURL()
	s.logger.Info("connecting upstream",
		slog.String("deployment", s.mt.cfg.deployment),
		slog.String("api_version", s.mt.cfg.apiVersion),
	)

	return websocket.Dial(ctx, websocket.Config{
		URL:     url,
		Headers: headers,
		Logger:  s.logger,
	})
}

func (s *session) closeConn(c *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		s.logger.Debug("close failed", slog.Any("err", err))
	}
}

// handleClientFrame relays one client frame through the downstream
// transformer. Malformed frames are dropped; nothing a client sends can
// terminate the session other than disconnecting.
func (s *session) handleClientFrame(data []byte) error {
	out := s.processClientFrame(data)
	if out != nil {
		s.upstream.WriteText(out)
	}
	return nil
}

// handleUpstreamFrame relays one upstream frame through the upstream
// transformer. A returned error indicates protocol desynchronization and
// is fatal for the session.
func (s *session) handleUpstreamFrame(data []byte) error {
	out, err := s.processUpstreamFrame(data)
	if err != nil {
		return err
	}
	if out != nil {
		s.client.WriteText(out)
	}
	return nil
}

func (s *session) sendUpstream(evt any) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal upstream event failed", slog.Any("err", err))
		return
	}
	s.upstream.WriteText(data)
}

func (s *session) sendClient(evt any) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal client event failed", slog.Any("err", err))
		return
	}
	s.client.WriteText(data)
}
