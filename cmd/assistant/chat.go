package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"assistant/internal/bootstrap"
	"assistant/internal/orchestrator"
	"assistant/internal/repl"
	"assistant/internal/tui"
	"assistant/internal/widget"
)

const (
	tuiLogName      = "assistant.log"
	replHistoryName = "repl.history"
)

type chatOptions struct {
	plain       bool
	sessionRef  string
	contextPath string
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat client",
		Long:  "Opens the full-screen chat client on a terminal, or a line-mode client with --plain or when output is not a terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts, co)
		},
	}
	cmd.Flags().BoolVar(&co.plain, "plain", false, "Use the line-mode client")
	cmd.Flags().StringVar(&co.sessionRef, "session", "", "Session to resume (index, id or id prefix)")
	cmd.Flags().StringVar(&co.contextPath, "context", "", "JSON file with the page context sent with each message")
	return cmd
}

func runChat(cmd *cobra.Command, opts *rootOptions, co *chatOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	fullScreen := !co.plain && repl.IsTerminal()

	// 全屏模式下日志写入文件，避免破坏界面
	logFile := ""
	if fullScreen && cfg.Log.File == "" {
		if logFile, err = dataPath(cfg, tuiLogName); err != nil {
			return err
		}
	}
	logger, closeLog, err := opts.logger(cfg, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	res, err := bootstrap.BuildClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("close session backend", "err", err)
		}
	}()
	ctrl := res.Controller

	if co.sessionRef != "" {
		if _, err := ctrl.Switch(co.sessionRef); err != nil {
			return err
		}
	}
	if co.contextPath != "" {
		pc, err := loadPageContext(co.contextPath)
		if err != nil {
			return err
		}
		ctrl.SetPageContext(pc)
	}

	ctx := cmd.Context()
	timeout := time.Duration(cfg.Client.TimeoutMS) * time.Millisecond
	if fullScreen {
		return tui.Run(ctx, ctrl, cfg.Provider.Model, timeout)
	}

	historyPath, err := dataPath(cfg, replHistoryName)
	if err != nil {
		return err
	}
	in := repl.NewLineInput(historyPath)
	defer func() { _ = in.Close() }()
	return runPlain(cmd, ctrl, in, cfg.Provider.Model, timeout, repl.IsTerminal())
}

func runPlain(cmd *cobra.Command, ctrl *widget.Controller, in repl.LineInput, model string, timeout time.Duration, color bool) error {
	loop := repl.NewLoop(ctrl, in, cmd.OutOrStdout(), repl.Options{Model: model, Timeout: timeout, Color: color})
	return loop.Run(cmd.Context())
}

func loadPageContext(path string) (*orchestrator.PageContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read page context %s", path)
	}
	var pc orchestrator.PageContext
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, errors.Wrapf(err, "decode page context %s", path)
	}
	return &pc, nil
}
