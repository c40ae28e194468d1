package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// newBookmarksCommand constructs the `bookmarks` command group
func newBookmarksCommand(a *app) *cobra.Command {
	bookmarksCmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Inspect or reset per-file scan progress",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List bookmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookmarks, err := a.guard.Bookmarks(cmd.Context())
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(bookmarks))
			for p := range bookmarks {
				paths = append(paths, p)
			}
			sort.Strings(paths)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "FILE\tOFFSET\tSWEPT AT")
			for _, p := range paths {
				bm := bookmarks[p]
				_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", filepath.Base(p), bm.Offset, bm.Timestamp.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset [FILE...]",
		Short: "Forget scan progress so the next sweep reads files from the start",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && len(args) == 0 {
				return fmt.Errorf("name files to reset or pass --all")
			}

			targets := make([]string, 0, len(args))
			for _, name := range args {
				if !filepath.IsAbs(name) {
					name = filepath.Join(a.guard.StateDir(), name)
				}
				targets = append(targets, name)
			}
			if all {
				bookmarks, err := a.guard.Bookmarks(cmd.Context())
				if err != nil {
					return err
				}
				for p := range bookmarks {
					targets = append(targets, p)
				}
			}

			for _, p := range targets {
				if err := a.guard.ResetBookmark(cmd.Context(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
	resetCmd.Flags().Bool("all", false, "Reset every bookmark in the state directory")

	bookmarksCmd.AddCommand(listCmd, resetCmd)
	return bookmarksCmd
}
