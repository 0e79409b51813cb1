package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and edit strip tags",
	}
	cmd.AddCommand(
		newTagsListCmd(),
		newTagsShowCmd(),
		newTagsAddCmd(),
		newTagsRemoveCmd(),
		newTagsRenameCmd(),
	)
	return cmd
}

func newTagsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := resolveCatalog(cmd)
			if err != nil {
				return err
			}
			tags, err := catalog.AllTags(cmd.Context())
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tags")
				return nil
			}
			rows := make([][]string, 0, len(tags))
			for _, tag := range tags {
				rows = append(rows, []string{tag})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Tag"}, rows, nil))
			return nil
		},
	}
}

func newTagsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show TAG",
		Short: "List the strips carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := resolveCatalog(cmd)
			if err != nil {
				return err
			}
			records, err := catalog.ComicsForTag(cmd.Context(), comics.NormalizeTag(args[0]))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No strips tagged %q\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{rec.Date, rec.ImagePath, truncate(rec.Transcript, 60)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Date", "Image", "Transcript"}, rows, nil))
			return nil
		},
	}
}

func newTagsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add DATE TAG",
		Short: "Tag a strip, creating the tag if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := resolveCatalog(cmd)
			if err != nil {
				return err
			}
			date, err := canonicalDate(args[0])
			if err != nil {
				return err
			}
			tag := comics.NormalizeTag(args[1])
			if err := catalog.AddTag(cmd.Context(), date, tag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %q\n", date, tag)
			return nil
		},
	}
}

func newTagsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm DATE TAG",
		Aliases: []string{"remove"},
		Short:   "Remove a tag from a strip",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := resolveCatalog(cmd)
			if err != nil {
				return err
			}
			date, err := canonicalDate(args[0])
			if err != nil {
				return err
			}
			tag := comics.NormalizeTag(args[1])
			if err := catalog.RemoveTag(cmd.Context(), date, tag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q from %s\n", tag, date)
			return nil
		},
	}
}

func newTagsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a tag everywhere",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := resolveCatalog(cmd)
			if err != nil {
				return err
			}
			oldName, newName := comics.NormalizeTag(args[0]), comics.NormalizeTag(args[1])
			if err := catalog.RenameTag(cmd.Context(), oldName, newName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", oldName, newName)
			return nil
		},
	}
}

func resolveCatalog(cmd *cobra.Command) (comics.Catalog, error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	return appInstance.Catalog(), nil
}

func canonicalDate(raw string) (string, error) {
	date, err := comics.ParseDate(raw)
	if err != nil {
		return "", err
	}
	return comics.FormatDate(date), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
