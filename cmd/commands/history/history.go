package history

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-native/compose-deploy/cmd/config"
	"github.com/go-native/compose-deploy/cmd/store"
)

func NewCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listReleases(cmd, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of releases to show")
	return cmd
}

func listReleases(cmd *cobra.Command, limit int) error {
	settings := config.SettingsFrom(cmd.Context())

	st, err := store.Open(settings.History.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	releases, err := st.ListReleases(limit)
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		fmt.Println("No releases recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tIMAGE\tSTATUS\tSTAGE\tCOMMIT")
	for _, rel := range releases {
		commit := rel.GitSHA
		if len(commit) > 8 {
			commit = commit[:8]
		}
		if rel.GitDirty {
			commit += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rel.StartedAt.Local().Format("2006-01-02 15:04"),
			rel.Image, rel.Status, rel.Stage, commit)
	}
	return w.Flush()
}
