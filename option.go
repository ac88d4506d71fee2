package midtier

import (
	"fmt"
	"log/slog"
	"strings"
)

const defaultAPIVersion = "2025-04-01-preview"

type config struct {
	endpoint      string
	deployment    string
	apiVersion    string
	key           string
	tokens        *TokenCache
	systemMessage string
	temperature   *float64
	maxTokens     *int
	disableAudio  *bool
	voice         string
	logger        *slog.Logger
}

func (c *config) validate() error {
	if c.endpoint == "" {
		return fmt.Errorf("missing endpoint")
	}
	if c.deployment == "" {
		return fmt.Errorf("missing deployment")
	}
	if c.key == "" && c.tokens == nil {
		return fmt.Errorf("missing credential: set a key or a token provider")
	}
	return nil
}

type Option func(*config)

// WithEndpoint sets the upstream base URL. A trailing slash is stripped
// for proper URL joining.
func WithEndpoint(endpoint string) Option {
	return func(c *config) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

func WithDeployment(deployment string) Option {
	return func(c *config) {
		c.deployment = deployment
	}
}

func WithAPIVersion(version string) Option {
	return func(c *config) {
		c.apiVersion = version
	}
}

// WithKey authenticates upstream connections with a static API key header.
func WithKey(key string) Option {
	return func(c *config) {
		c.key = key
	}
}

// WithTokenCache authenticates upstream connections with bearer tokens
// from the given cache. Ignored when a static key is also set.
func WithTokenCache(tc *TokenCache) Option {
	return func(c *config) {
		c.tokens = tc
	}
}

// WithSystemMessage sets the server-enforced model instructions. Clients
// can never observe or override them.
func WithSystemMessage(msg string) Option {
	return func(c *config) {
		c.systemMessage = msg
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *config) {
		c.temperature = &temperature
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(c *config) {
		c.maxTokens = &maxTokens
	}
}

func WithDisableAudio(disable bool) Option {
	return func(c *config) {
		c.disableAudio = &disable
	}
}

func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func withDefaults() Option {
	return func(c *config) {
		c.apiVersion = defaultAPIVersion
		c.logger = slog.Default()
	}
}
