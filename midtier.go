// Package midtier relays realtime voice sessions between a browser client
// and an upstream realtime conversation endpoint. It rewrites protocol
// events in both directions to enforce server-side session policy and
// runs a tool-calling layer whose tools stay invisible to the client.
package midtier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/voicekit/midtier-go/tool"
)

const realtimePath = "/openai/realtime"

type MiddleTier struct {
	cfg   config
	tools *tool.Registry
}

func New(opts ...Option) (*MiddleTier, error) {
	var cfg config
	withDefaults()(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mt := &MiddleTier{
		cfg:   cfg,
		tools: tool.NewRegistry(),
	}

	if cfg.key == "" {
		// Warm up during startup so a token is cached when the first
		// session arrives.
		if _, err := cfg.tokens.Token(context.Background()); err != nil {
			return nil, fmt.Errorf("token warm-up: %w", err)
		}
	}

	if cfg.voice != "" {
		cfg.logger.Info("realtime voice choice set", slog.String("voice", cfg.voice))
	}

	return mt, nil
}

// RegisterTool adds a server-side tool to the catalog. Must be called
// before the middle tier starts serving sessions; the registry is
// read-only afterwards.
func (mt *MiddleTier) RegisterTool(schema tool.Tool, h tool.Handler) error {
	return mt.tools.Register(schema, h)
}

// HandleWebSocket upgrades the request to a websocket and relays the
// session until either side disconnects. It blocks for the lifetime of
// the session.
func (mt *MiddleTier) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	mt.newSession().run(w, r)
}

// realtimeURL builds the upstream websocket URL: base endpoint plus the
// fixed realtime path, with protocol-version and deployment parameters.
func (mt *MiddleTier) realtimeURL() string {
	endpoint := mt.cfg.endpoint
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}

	params := url.Values{}
	params.Set("api-version", mt.cfg.apiVersion)
	params.Set("deployment", mt.cfg.deployment)

	return endpoint + realtimePath + "?" + params.Encode()
}

func (mt *MiddleTier) upstreamHeaders(ctx context.Context, r *http.Request) (http.Header, error) {
	headers := http.Header{}

	if id := r.Header.Get("x-ms-client-request-id"); id != "" {
		headers.Set("x-ms-client-request-id", id)
	}

	if mt.cfg.key != "" {
		headers.Set("api-key", mt.cfg.key)
		return headers, nil
	}

	token, err := mt.cfg.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("bearer token: %w", err)
	}
	headers.Set("Authorization", "Bearer "+token)
	return headers, nil
}
