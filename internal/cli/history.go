package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved snapshot revisions",
	Long: `List saved revisions of the configured snapshot, newest first. The file
driver keeps only the current revision; sqlite keeps up to snapshot.retain.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum revisions to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("history")

	revs, err := s.persister.Backend().History(s.cfg.Snapshot.Name, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(revs) == 0 {
		fmt.Fprintln(out, "No snapshots saved.")
		return nil
	}

	fmt.Fprintf(out, "Snapshot %q (%s):\n", s.cfg.Snapshot.Name, s.cfg.Snapshot.Driver)
	for _, r := range revs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(out, "  %s  %s  %d bytes\n", id, r.CreatedAt.Format(time.RFC3339), r.Size)
	}
	return nil
}
