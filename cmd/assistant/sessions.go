package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assistant/internal/bootstrap"
	"assistant/internal/config"
	"assistant/internal/session"
	"assistant/internal/storage"
	"assistant/internal/widget"
)

// clientAction runs fn against the client graph of the selected client context.
func clientAction(opts *rootOptions, fn func(cmd *cobra.Command, ctrl *widget.Controller, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		res, _, cleanup, err := opts.openClient(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(cmd, res.Controller, args)
	}
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage stored chat sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, most recent first",
		Args:    cobra.NoArgs,
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), ctrl.SessionsText())
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [ref]",
		Short: "Print the messages of a session (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, args []string) error {
			var (
				sess session.Session
				ok   bool
			)
			if len(args) == 1 {
				found, err := ctrl.Lookup(args[0])
				if err != nil {
					return err
				}
				sess, ok = found, true
			} else {
				sess, ok = ctrl.Store().Current()
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), ctrl.Locale().T("session.empty"))
				return nil
			}
			writeTranscript(cmd.OutOrStdout(), sess)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Start a new empty session and make it current",
		Args:  cobra.NoArgs,
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), ctrl.NewSession())
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <ref> <title...>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, args []string) error {
			out, err := ctrl.RenameSession(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return errors.New(ctrl.ErrorText(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <ref>",
		Aliases: []string{"rm"},
		Short:   "Delete a session",
		Args:    cobra.ExactArgs(1),
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, args []string) error {
			out, err := ctrl.Delete(args[0])
			if err != nil {
				return errors.New(ctrl.ErrorText(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [ref]",
		Short: "Remove every message from a session (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			out, err := ctrl.Clear(ref)
			if err != nil {
				return errors.New(ctrl.ErrorText(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "usage",
		Short: "Show storage usage against the quota",
		Args:  cobra.NoArgs,
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), ctrl.QuotaText())
			return nil
		}),
	})

	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

func writeTranscript(w io.Writer, sess session.Session) {
	fmt.Fprintf(w, "%s  (%s, updated %s)\n", sess.Title, sess.ID, humanize.Time(sess.UpdatedAt))
	for _, m := range sess.Messages {
		fmt.Fprintf(w, "\n[%s] %s\n", m.Role, m.CreatedAt.Local().Format(time.DateTime))
		if m.Content != "" {
			fmt.Fprintln(w, m.Content)
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(w, "  + %s (%s, %s)\n", a.Name, a.MimeType, humanize.IBytes(uint64(a.SizeBytes)))
		}
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy stored sessions between the file and sqlite backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			n, err := migrate(cfg, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d client(s) to %s\n", n, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "sqlite", "Destination backend (sqlite or file)")
	return cmd
}

func migrate(cfg config.Config, to string) (int, error) {
	from := "file"
	switch to {
	case "sqlite":
	case "file":
		from = "sqlite"
	default:
		return 0, errors.Newf("unknown backend %q", to)
	}

	srcCfg, dstCfg := cfg, cfg
	srcCfg.Storage.Backend = from
	dstCfg.Storage.Backend = to
	src, err := bootstrap.OpenBlobStore(srcCfg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()
	dst, err := bootstrap.OpenBlobStore(dstCfg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dst.Close() }()
	return storage.MigrateBlobs(src, dst, nil)
}
