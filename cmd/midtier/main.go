package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	midtier "github.com/voicekit/midtier-go"
	"github.com/voicekit/midtier-go/knowledge"
	"github.com/voicekit/midtier-go/loglookup"
)

const defaultSystemMessage = `You are a helpful assistant that talks quickly and clearly. You only talk in English.
The user is listening via audio, so answers must be as short as possible, one sentence if you can.
Never read file names, source names, or keys out loud.
Always follow these steps when responding:
1. Use the 'search' tool to check the knowledge base before answering.
2. Use the 'report_grounding' tool to report your information sources.
3. If the user mentions login issues or trouble accessing their account, ask for their member number and use the 'get_signin_logs' tool to check their recent sign-in attempts, then search the knowledge base for the error codes you find.
4. Produce an answer as short as possible. If the answer isn't in the knowledge base, say "I don't know".`

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	if os.Getenv("RUNNING_IN_PRODUCTION") == "" {
		logger.Info("running in development mode, loading .env")
		if err := godotenv.Load(); err != nil {
			logger.Warn("no .env file loaded", slog.Any("err", err))
		}
	}

	opts := []midtier.Option{
		midtier.WithEndpoint(mustEnv("REALTIME_ENDPOINT")),
		midtier.WithDeployment(mustEnv("REALTIME_DEPLOYMENT")),
		midtier.WithVoice(envOr("REALTIME_VOICE_CHOICE", "alloy")),
		midtier.WithSystemMessage(envOr("SYSTEM_MESSAGE", defaultSystemMessage)),
		midtier.WithLogger(logger),
	}
	if v := os.Getenv("REALTIME_API_VERSION"); v != "" {
		opts = append(opts, midtier.WithAPIVersion(v))
	}

	if key := os.Getenv("REALTIME_API_KEY"); key != "" {
		logger.Info("using API key authentication")
		opts = append(opts, midtier.WithKey(key))
	} else {
		logger.Info("using bearer token authentication")
		tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token",
			mustEnv("TENANT_ID"))
		opts = append(opts, midtier.WithTokenCache(midtier.NewTokenCache(
			midtier.ClientCredentialsToken(
				tokenURL,
				mustEnv("CLIENT_ID"),
				mustEnv("CLIENT_SECRET"),
				"https://cognitiveservices.azure.com/.default",
			),
		)))
	}

	mt, err := midtier.New(opts...)
	if err != nil {
		return err
	}

	if endpoint := os.Getenv("SEARCH_ENDPOINT"); endpoint != "" {
		err := knowledge.Attach(mt, knowledge.Config{
			Endpoint:              endpoint,
			Index:                 mustEnv("SEARCH_INDEX"),
			APIKey:                os.Getenv("SEARCH_API_KEY"),
			SemanticConfiguration: os.Getenv("SEARCH_SEMANTIC_CONFIGURATION"),
			IdentifierField:       os.Getenv("SEARCH_IDENTIFIER_FIELD"),
			ContentField:          os.Getenv("SEARCH_CONTENT_FIELD"),
			TitleField:            os.Getenv("SEARCH_TITLE_FIELD"),
			Logger:                logger,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("SEARCH_ENDPOINT not set, knowledge tools disabled")
	}

	if endpoint := os.Getenv("SIGNIN_LOGS_ENDPOINT"); endpoint != "" {
		err := loglookup.Attach(mt, loglookup.Config{
			Endpoint: endpoint,
			APIKey:   os.Getenv("SIGNIN_LOGS_API_KEY"),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("SIGNIN_LOGS_ENDPOINT not set, sign-in log tool disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime", mt.HandleWebSocket)

	staticDir := envOr("STATIC_DIR", "./static")
	if _, err := os.Stat(filepath.Join(staticDir, "index.html")); err != nil {
		logger.Warn("static index.html not found", slog.String("dir", staticDir))
	}
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))

	addr := envOr("HOST", "localhost") + ":" + envOr("PORT", "8765")
	logger.Info("listening", slog.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("missing required environment variable", slog.String("name", key))
		os.Exit(1)
	}
	return v
}
