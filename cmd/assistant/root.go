package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"assistant/internal/bootstrap"
	"assistant/internal/config"
	"assistant/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions 全局参数 / Global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	dataDir    string
	clientID   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Contact assistant chat server and client",
		Long:          "Runs the contact assistant chat API and a terminal chat client whose history is kept locally under a storage quota.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a config file (JSON, JSONC or YAML)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Data directory override (default ~/.assistant)")
	flags.StringVar(&opts.clientID, "client", "", "Client context whose sessions are used")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSessionsCmd(opts),
		newQuotaCmd(opts),
		newContactsCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the layered config and applies the global flag overrides.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if v := strings.TrimSpace(o.logLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(o.dataDir); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(o.clientID); v != "" {
		cfg.Storage.ClientID = v
	}
	return cfg, nil
}

// logger builds the process logger. A non-empty file wins over cfg.Log.File.
func (o *rootOptions) logger(cfg config.Config, file string) (*log.Logger, func() error, error) {
	if file == "" {
		file = cfg.Log.File
	}
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: file})
}

// openClient loads config and builds the client graph with logs on stderr.
func (o *rootOptions) openClient(cmd *cobra.Command) (*bootstrap.ClientResult, config.Config, func(), error) {
	cfg, err := o.load()
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	logger := logging.NewWriter(cmd.ErrOrStderr(), logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	res, err := bootstrap.BuildClient(cfg, logger)
	if err != nil {
		return nil, cfg, nil, err
	}
	cleanup := func() {
		if err := res.Close(); err != nil {
			logger.Warn("close session backend", "err", err)
		}
	}
	return res, cfg, cleanup, nil
}

func dataPath(cfg config.Config, name string) (string, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve data dir")
	}
	return filepath.Join(dir, name), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = io.WriteString(cmd.OutOrStdout(), "assistant "+version+"\n")
		},
	}
}

func newConfigCmd(_ *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [dir]",
		Short: "Write " + config.ProjectConfigName + " with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if _, err := os.Stat(dir); err != nil {
				return errors.Wrapf(err, "config dir %s", dir)
			}
			path, created, err := config.InitProjectConfig(dir)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	})
	return cmd
}
