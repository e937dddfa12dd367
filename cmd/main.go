package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"dcode-agent/handler"
	"dcode-agent/internal/dialogue"
	"dcode-agent/internal/integrations/openai"
	"dcode-agent/internal/integrations/paramstore"
	"dcode-agent/internal/repository"
	"dcode-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	maxHistoryTurns := envInt("MAX_HISTORY_TURNS", 8)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	params, err := paramstore.NewCache(ssmClient)
	if err != nil {
		slog.Error("failed to create parameter cache", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create store", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(params, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	resolver, err := usecase.NewResolver(params, openaiClient, paramPrefix, maxHistoryTurns, usecase.DefaultCompletionOptions())
	if err != nil {
		slog.Error("failed to create resolver", "err", err)
		os.Exit(1)
	}

	// The terminal handoff persists the finished trip for the ending
	// screen, keyed on the same user ID the profile and notification
	// reads use; an anonymous session records under the shared guest ID.
	handoff := dialogue.HandoffFunc(func(ctx context.Context, p dialogue.HandoffPayload) error {
		userID := p.UserID
		if userID == "" {
			userID = "guest"
		}
		trip := repository.NewTrip(userID, p.Nickname, p.VisitedPlaces, p.ScanArtifact)
		return store.SaveCompletedTrip(ctx, trip)
	})

	sessions, err := dialogue.NewManager(resolver, handoff)
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(sessions, store)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
