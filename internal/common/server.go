package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/auth"
	"trpc.group/trpc-go/trpc-a2a-go/log"
	"trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"
)

// SetupServerOptions contains options for setting up an A2A server
type SetupServerOptions struct {
	AgentName    string
	AgentVersion string
	AgentURL     string
	Description  string
	AuthType     string
	JWTSecret    string
	APIKey       string
	Processor    taskmanager.TaskProcessor
	Skills       []server.AgentSkill
}

// NewAuthProvider builds the provider for authType. An empty authType means no
// authentication and yields a nil provider.
func NewAuthProvider(authType, jwtSecret, apiKey string) (auth.Provider, error) {
	switch authType {
	case "":
		return nil, nil
	case "jwt":
		if jwtSecret == "" {
			return nil, fmt.Errorf("jwt authentication requires a secret")
		}
		return auth.NewJWTAuthProvider(
			[]byte(jwtSecret),
			"", // audience (empty for any)
			"", // issuer (empty for any)
			24*time.Hour,
		), nil
	case "apikey":
		if apiKey == "" {
			return nil, fmt.Errorf("apikey authentication requires a key")
		}
		return auth.NewAPIKeyAuthProvider(map[string]string{apiKey: "user"}, "X-API-Key"), nil
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", authType)
	}
}

// SetupServer creates and configures an A2A server with common settings
func SetupServer(opts SetupServerOptions) (*server.A2AServer, error) {
	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("%s agent", opts.AgentName)
	}
	agentCard := server.AgentCard{
		Name:        opts.AgentName,
		Description: StringPtr(description),
		URL:         opts.AgentURL,
		Version:     opts.AgentVersion,
		Provider: &server.AgentProvider{
			Organization: "OTRS Connector",
		},
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: []string{"data"},
		Skills:             opts.Skills,
	}

	taskManager, err := taskmanager.NewMemoryTaskManager(opts.Processor)
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}

	serverOpts := []server.Option{
		// JSON-RPC at root so A2AClient.SendTasks posts to "/"
		server.WithJSONRPCEndpoint("/"),
		// polling runs can take a while
		server.WithReadTimeout(2 * time.Minute),
		server.WithWriteTimeout(2 * time.Minute),
	}

	authProvider, err := NewAuthProvider(opts.AuthType, opts.JWTSecret, opts.APIKey)
	if err != nil {
		return nil, err
	}
	if authProvider != nil {
		log.Default.Infof("Configuring %s authentication for %s", opts.AuthType, opts.AgentName)
		serverOpts = append(serverOpts, server.WithAuthProvider(authProvider))
	} else {
		log.Default.Warnf("No authentication configured for %s, running unauthenticated", opts.AgentName)
	}

	srv, err := server.NewA2AServer(agentCard, taskManager, serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return srv, nil
}

// StartServer starts the A2A server and stops it once ctx is done
func StartServer(ctx context.Context, srv *server.A2AServer, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	errCh := make(chan error, 1)
	go func() {
		log.Default.Infof("Starting A2A server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("A2A server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Default.Infof("Shutting down A2A server...")
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// StartHTTPServer serves handler on addr until ctx is done
func StartHTTPServer(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Default.Infof("Starting HTTP server on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Default.Infof("Shutting down HTTP server on %s...", addr)
	return httpServer.Shutdown(shutdownCtx)
}

// AuthUserContextKey is the context key holding the authenticated user
type AuthUserContextKey struct{}

// AuthMiddleware authenticates requests with provider before passing them on.
// A nil provider lets every request through.
func AuthMiddleware(provider auth.Provider, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if provider == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := provider.Authenticate(r)
		if err != nil {
			log.Default.Warnf("Authentication failed: %v", err)
			ReturnJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), AuthUserContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
