// Command server runs the conversation streaming engine.
//
// Configuration is loaded from a YAML file (see pkg/config for the
// discovery order) with CHATENGINE_* environment overrides, e.g.:
//
//	CHATENGINE_UPSTREAM_URL - model backend URL (required)
//	CHATENGINE_MODEL        - model name (required)
//	CHATENGINE_PORT         - listen port (default: 8080)
//	CHATENGINE_STORAGE      - "memory" or "postgres" (default: "memory")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/config"
	"github.com/buhlergroup/chatengine/pkg/debug"
	"github.com/buhlergroup/chatengine/pkg/engine"
	"github.com/buhlergroup/chatengine/pkg/files"
	"github.com/buhlergroup/chatengine/pkg/files/kubernetes"
	"github.com/buhlergroup/chatengine/pkg/storage"
	"github.com/buhlergroup/chatengine/pkg/storage/memory"
	"github.com/buhlergroup/chatengine/pkg/storage/postgres"
	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/tools/builtins/docsearch"
	"github.com/buhlergroup/chatengine/pkg/tools/builtins/imagegen"
	"github.com/buhlergroup/chatengine/pkg/tools/mcp"
	"github.com/buhlergroup/chatengine/pkg/transport"
	transporthttp "github.com/buhlergroup/chatengine/pkg/transport/http"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Observability.Debug, cfg.Observability.LogLevel)

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	streamer, err := upstream.NewClient(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Upstream.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating tool registry: %w", err)
	}
	defer registry.Close()

	engineFiles, err := buildFiles(cfg)
	if err != nil {
		return fmt.Errorf("creating file clients: %w", err)
	}

	maxOutputTokens := 0
	if cfg.Engine.MaxOutputTokens != nil {
		maxOutputTokens = *cfg.Engine.MaxOutputTokens
	}
	eng, err := engine.New(streamer, registry, store, engineFiles, engine.Config{
		Model:            cfg.Engine.Model,
		SystemPrompt:     cfg.Engine.SystemPrompt,
		MaxContinuations: cfg.Engine.MaxContinuations,
		MaxOutputTokens:  maxOutputTokens,
		Temperature:      cfg.Engine.Temperature,
		Reasoning:        reasoningConfig(cfg),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	runner := &turnRunner{engine: eng, store: store, registry: registry}
	srv := transporthttp.NewServer(runner,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithHealthCheck(store.HealthCheck),
	)

	slog.Info("engine configured",
		"model", cfg.Engine.Model,
		"storage", cfg.Storage.Type,
		"max_continuations", cfg.Engine.MaxContinuations)
	return srv.ListenAndServe()
}

// reasoningConfig maps the config reasoning section to the upstream
// request shape. Nil when no reasoning is requested.
func reasoningConfig(cfg *config.Config) *upstream.ReasoningConfig {
	r := cfg.Engine.Reasoning
	if r.Effort == "" && r.Summary == "" {
		return nil
	}
	return &upstream.ReasoningConfig{Effort: r.Effort, Summary: r.Summary}
}

// turnRunner adapts the engine to the transport contract: it registers
// the request's dynamic tools, loads thread history from the store, and
// persists the user turn before streaming starts.
type turnRunner struct {
	engine   *engine.Engine
	store    storage.MessageStore
	registry *tools.Registry
}

var _ transport.TurnRunner = (*turnRunner)(nil)

func (r *turnRunner) RunTurn(ctx context.Context, req *transport.ChatRequest, w transport.EventWriter) error {
	for _, d := range req.Tools {
		if err := r.registry.RegisterDynamic(d); err != nil {
			return api.NewInvalidRequestError("tools", err.Error())
		}
	}

	msgs, err := r.store.ListThread(ctx, req.ThreadID)
	if err != nil {
		return fmt.Errorf("loading thread history: %w", err)
	}

	userMsg := &storage.Message{
		ID:       api.NewMessageID(),
		ThreadID: req.ThreadID,
		Role:     "user",
		Content:  req.Message,
	}
	if err := r.store.UpsertMessage(ctx, userMsg); err != nil {
		slog.Warn("persisting user message failed", "thread_id", req.ThreadID, "error", err)
	}

	return r.engine.Run(ctx, engine.Request{
		ThreadID:    req.ThreadID,
		Text:        req.Message,
		ImageURL:    req.ImageURL,
		User:        req.User,
		ToolHeaders: req.ToolHeaders,
		History:     engine.HistoryFromMessages(msgs),
	}, w)
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.MessageStore, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
	default:
		return memory.New(), nil
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config) (*tools.Registry, error) {
	var signer *tools.IdentitySigner
	if cfg.Tools.Identity.Secret != "" {
		var err error
		signer, err = tools.NewIdentitySigner(
			[]byte(cfg.Tools.Identity.Secret),
			cfg.Tools.Identity.Issuer,
			cfg.Tools.Identity.TTL,
		)
		if err != nil {
			return nil, fmt.Errorf("creating identity signer: %w", err)
		}
	}
	registry := tools.NewRegistry(signer)

	if cfg.Tools.ImageGen.Enabled {
		blobs, err := blobClient(cfg)
		if err != nil {
			return nil, err
		}
		provider, err := imagegen.New(imagegen.Config{
			BaseURL: cfg.Tools.ImageGen.BaseURL,
			APIKey:  cfg.Tools.ImageGen.APIKey,
			Model:   cfg.Tools.ImageGen.Model,
		}, blobs)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterProvider(provider); err != nil {
			return nil, err
		}
	}

	if cfg.Tools.DocSearch.Enabled {
		provider, err := docsearch.New(docsearch.Config{
			BaseURL:    cfg.Tools.DocSearch.BaseURL,
			APIKey:     cfg.Tools.DocSearch.APIKey,
			MaxResults: cfg.Tools.DocSearch.MaxResults,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterProvider(provider); err != nil {
			return nil, err
		}
	}

	if len(cfg.Tools.MCP.Servers) > 0 {
		clients := make(map[string]*mcp.Client)
		for _, serverCfg := range cfg.Tools.MCP.Servers {
			c := mcp.NewClient(serverCfg)
			if err := c.Connect(ctx); err != nil {
				slog.Warn("MCP server unavailable, skipping",
					"server", serverCfg.Name, "error", err)
				continue
			}
			clients[serverCfg.Name] = c
		}
		if len(clients) > 0 {
			if err := registry.RegisterProvider(mcp.NewProvider(clients)); err != nil {
				return nil, err
			}
		}
	}

	return registry, nil
}

func buildFiles(cfg *config.Config) (engine.Files, error) {
	var fs engine.Files

	if cfg.Files.Sandbox.BaseURL != "" {
		container, err := files.NewSandboxClient(cfg.Files.Sandbox.BaseURL, cfg.Files.Sandbox.APIKey)
		if err != nil {
			return fs, err
		}
		fs.Container = container
	}
	if cfg.Files.FileStore.BaseURL != "" {
		store, err := files.NewFileStoreClient(cfg.Files.FileStore.BaseURL, cfg.Files.FileStore.APIKey)
		if err != nil {
			return fs, err
		}
		fs.Store = store
	}
	if cfg.Files.Blobs.BaseURL != "" {
		blobs, err := blobClient(cfg)
		if err != nil {
			return fs, err
		}
		fs.Blobs = blobs
	}

	sandboxKey := cfg.Files.Sandbox.APIKey
	fs.NewContainer = func(baseURL string) (files.ContainerFiles, error) {
		return files.NewSandboxClient(baseURL, sandboxKey)
	}

	if cfg.Files.Sandboxes.Enabled {
		acquirer, err := buildAcquirer(cfg)
		if err != nil {
			return fs, err
		}
		fs.Acquirer = acquirer
	}

	return fs, nil
}

func buildAcquirer(cfg *config.Config) (files.ContainerAcquirer, error) {
	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubernetes config: %w", err)
	}
	scheme, err := kubernetes.NewScheme()
	if err != nil {
		return nil, fmt.Errorf("building kubernetes scheme: %w", err)
	}
	k8sClient, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return kubernetes.NewClaimAcquirer(
		k8sClient,
		cfg.Files.Sandboxes.Template,
		cfg.Files.Sandboxes.Namespace,
		cfg.Files.Sandboxes.Timeout,
	), nil
}

func blobClient(cfg *config.Config) (files.BlobStore, error) {
	if cfg.Files.Blobs.BaseURL == "" {
		return nil, fmt.Errorf("files.blobs.base_url is required for file resolution")
	}
	return files.NewBlobClient(
		cfg.Files.Blobs.BaseURL,
		cfg.Files.Blobs.PublicURL,
		cfg.Files.Blobs.APIKey,
	)
}
