package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"assistant/internal/bootstrap"
	"assistant/internal/storage"
)

func newContactsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Inspect the contact book the assistant writes to",
	}

	var (
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List person contacts, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			path, err := dataPath(cfg, bootstrap.DatabaseName)
			if err != nil {
				return err
			}
			book, err := storage.NewSQLiteStore(path)
			if err != nil {
				return err
			}
			defer func() { _ = book.Close() }()

			people, err := book.ListPeople(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(people)
			}
			writePeople(cmd.OutOrStdout(), people)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum number of contacts")
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(list)
	return cmd
}

func writePeople(w io.Writer, people []storage.PersonRecord) {
	if len(people) == 0 {
		fmt.Fprintln(w, "No contacts yet.")
		return
	}
	const nameWidth, companyWidth = 28, 24
	for _, p := range people {
		name := strings.TrimSpace(p.FirstName + " " + p.LastName)
		fmt.Fprintf(w, "%s  %s  %s\n",
			runewidth.FillRight(runewidth.Truncate(name, nameWidth, "..."), nameWidth),
			runewidth.FillRight(runewidth.Truncate(p.CompanyName, companyWidth, "..."), companyWidth),
			strings.Join(p.Emails, ", "))
	}
}
