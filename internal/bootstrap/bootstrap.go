package bootstrap

import (
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"assistant/internal/config"
	"assistant/internal/contextmgr"
	"assistant/internal/i18n"
	"assistant/internal/orchestrator"
	"assistant/internal/provider"
	"assistant/internal/session"
	"assistant/internal/storage"
	"assistant/internal/tools"
	"assistant/internal/transport"
	"assistant/internal/widget"
)

// ServerResult 服务端构建结果；调用方负责 defer result.Close()
// ServerResult holds the assembled chat API. The caller must defer Close.
type ServerResult struct {
	Server    *transport.Server
	Handler   *transport.Handler
	Orch      *orchestrator.Orchestrator
	Contacts  *storage.SQLiteStore
	Model     string
	ToolNames []string
}

// Close releases the contact database.
func (r *ServerResult) Close() error {
	if r == nil || r.Contacts == nil {
		return nil
	}
	return r.Contacts.Close()
}

// BuildServer 按顺序初始化存储、provider、工具与编排器
// BuildServer opens the contact store, then wires provider, tools and
// orchestrator behind the HTTP handler.
func BuildServer(cfg config.Config, logger *log.Logger) (*ServerResult, error) {
	if logger == nil {
		logger = log.Default()
	}
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, errors.Wrap(err, "resolve data dir")
	}
	contacts, err := storage.NewSQLiteStore(filepath.Join(dir, DatabaseName))
	if err != nil {
		return nil, errors.Wrap(err, "init storage")
	}

	providerClient, err := provider.New(providerConfig(cfg))
	if err != nil {
		_ = contacts.Close()
		return nil, errors.Wrap(err, "init provider")
	}
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		logger.Warn("no API key configured; chat requests will fail", "provider", cfg.Provider.Name)
	}

	registry := tools.NewRegistry(tools.NewCreatePersonTool(contacts))
	orch := orchestrator.New(providerClient, registry, orchestrator.Options{
		SystemPrompt:       cfg.SystemPrompt,
		Model:              cfg.Provider.Model,
		MaxTokens:          cfg.Provider.MaxTokens,
		MaxAttachmentBytes: cfg.Quota.MaxAttachmentBytes,
		HistoryTokenBudget: cfg.HistoryTokenBudget,
		Counter:            contextmgr.NewTokenizerForModel(cfg.Provider.Model),
		Logger:             logger,
	})

	handler := transport.NewHandler(transport.HandlerConfig{
		Runner:         orch,
		Logger:         logger,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: ms(cfg.Server.RequestTimeoutMS),
	})
	server := transport.NewServer(transport.ServerConfig{
		Address:      cfg.Server.Addr,
		Handler:      handler,
		Logger:       logger,
		ReadTimeout:  ms(cfg.Server.ReadTimeoutMS),
		WriteTimeout: ms(cfg.Server.WriteTimeoutMS),
	})

	return &ServerResult{
		Server:    server,
		Handler:   handler,
		Orch:      orch,
		Contacts:  contacts,
		Model:     cfg.Provider.Model,
		ToolNames: registry.Names(),
	}, nil
}

// ClientResult 客户端构建结果
// ClientResult holds the widget controller and its session backend.
type ClientResult struct {
	Controller *widget.Controller
	Store      *session.Store
	Backend    storage.BlobStore
	Client     *transport.Client
	Locale     *i18n.I18n
}

// Close releases the session backend.
func (r *ClientResult) Close() error {
	if r == nil || r.Backend == nil {
		return nil
	}
	return r.Backend.Close()
}

// BuildClient opens the session backend, restores the client's sessions and
// wires the controller to the chat API at cfg.Client.ServerURL.
func BuildClient(cfg config.Config, logger *log.Logger) (*ClientResult, error) {
	if logger == nil {
		logger = log.Default()
	}
	backend, err := OpenBlobStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open session backend")
	}

	store := session.New(LimitsFromConfig(cfg),
		session.WithPersister(backend),
		session.WithClientID(cfg.Storage.ClientID),
		session.WithLayoutMode(cfg.Client.Layout),
		session.WithLogger(logger),
	)
	if err := store.Load(); err != nil {
		_ = backend.Close()
		return nil, err
	}

	locale := i18n.New(cfg.Client.Locale)
	client := transport.NewClient(cfg.Client.ServerURL, ms(cfg.Client.TimeoutMS))
	ctrl := widget.New(store, client, PolicyFromConfig(cfg), widget.Options{
		Model:  cfg.Provider.Model,
		Locale: locale,
		Logger: logger,
	})

	return &ClientResult{
		Controller: ctrl,
		Store:      store,
		Backend:    backend,
		Client:     client,
		Locale:     locale,
	}, nil
}
