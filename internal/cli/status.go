package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status",
	Long: `Display capacity, fill level and snapshot details of the store.

Examples:
  mosaic status          # Show current status
  mosaic status --watch  # Refresh every two seconds`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "watch mode with live updates")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if !statusWatch {
		return showStatus(out)
	}

	fmt.Fprintln(out, "Watching for updates... (Ctrl+C to stop)")
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		fmt.Fprint(out, "\033[H\033[2J")
		if err := showStatus(out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		fmt.Fprintf(out, "\nLast updated: %s\n", time.Now().Format(time.RFC3339))

		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func showStatus(out io.Writer) error {
	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("status")

	entries := s.store.Retrieve(nil)
	fmt.Fprintf(out, "Store:    %s\n", s.cfg.Name)
	fmt.Fprintf(out, "Records:  %d/%d\n", len(entries), s.store.Capacity())
	fmt.Fprintf(out, "Next seq: %d\n", s.store.NextSequence())
	if len(entries) > 0 {
		fmt.Fprintf(out, "Oldest:   #%d  %s\n", entries[0].Sequence, entries[0].Timestamp.Format(time.RFC3339))
		last := entries[len(entries)-1]
		fmt.Fprintf(out, "Newest:   #%d  %s\n", last.Sequence, last.Timestamp.Format(time.RFC3339))
	}

	fmt.Fprintf(out, "Snapshot: %s (%s, %s, %s)\n",
		s.cfg.Snapshot.Name, s.cfg.Snapshot.Driver, s.cfg.Snapshot.Format, s.cfg.Snapshot.Path)
	revs, err := s.persister.Backend().History(s.cfg.Snapshot.Name, 1)
	if err != nil {
		return err
	}
	if len(revs) > 0 {
		fmt.Fprintf(out, "Saved:    %s (%d bytes)\n", revs[0].CreatedAt.Format(time.RFC3339), revs[0].Size)
	} else {
		fmt.Fprintln(out, "Saved:    never")
	}
	return nil
}
