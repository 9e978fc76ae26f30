package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	liblog "trpc.group/trpc-go/trpc-a2a-go/log"

	"github.com/tuannvm/otrs-connector/internal/actions"
	"github.com/tuannvm/otrs-connector/internal/agents"
	"github.com/tuannvm/otrs-connector/internal/common"
	"github.com/tuannvm/otrs-connector/internal/config"
	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

func main() {
	// Route tRPC-A2A-Go's internal logger through a console encoder
	liblog.Default = zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
				TimeKey:      "ts",
				LevelKey:     "lvl",
				MessageKey:   "message",
				CallerKey:    "caller",
				EncodeLevel:  zapcore.CapitalColorLevelEncoder,
				EncodeTime:   zapcore.RFC3339TimeEncoder,
				EncodeCaller: zapcore.ShortCallerEncoder,
			}),
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(zap.InfoLevel),
		),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	).Sugar()
	defer log.Sync()

	cfg := config.NewConfig()
	log.Infof("%s configured with A2A port %d and invoke port %d", cfg.AgentName, cfg.ServerPort, cfg.InvokePort)

	var storage platform.Storage
	if cfg.PlatformAPIURI != "" {
		storage = platform.NewStorageClient(cfg.PlatformAPIURI, cfg.PlatformAPIUsername, cfg.PlatformAPIKey, nil)
	} else {
		log.Warnf("ELASTICIO_API_URI is not set; attachment uploads will fail")
	}
	registry := actions.NewRegistry(actions.NewClientFactory(storage, cfg.HTTPTimeout))
	agent := agents.NewConnectorAgent(cfg, registry)

	srv, err := common.SetupServer(common.SetupServerOptions{
		AgentName:    cfg.AgentName,
		AgentVersion: cfg.AgentVersion,
		AgentURL:     cfg.AgentURL,
		Description:  "Creates, updates and polls OTRS tickets",
		AuthType:     cfg.AuthType,
		JWTSecret:    cfg.JWTSecret,
		APIKey:       cfg.APIKey,
		Processor:    agent,
		Skills:       agents.Skills(registry.Names()),
	})
	if err != nil {
		log.Fatalf("Failed to setup A2A server: %v", err)
	}

	provider, err := common.NewAuthProvider(cfg.AuthType, cfg.JWTSecret, cfg.APIKey)
	if err != nil {
		log.Fatalf("Failed to setup authentication: %v", err)
	}

	fmt.Println("Starting OTRS connector agent...")
	fmt.Printf("A2A endpoint: http://%s:%d/\n", cfg.ServerHost, cfg.ServerPort)
	fmt.Printf("Invoke endpoint: http://%s:%d/invoke\n", cfg.ServerHost, cfg.InvokePort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return common.StartServer(ctx, srv, cfg.ServerHost, cfg.ServerPort)
	})
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.InvokePort)
		return common.StartHTTPServer(ctx, addr, agent.Routes(provider))
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Infof("Server shutdown complete")
}
