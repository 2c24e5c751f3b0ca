package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every record",
	Long:  `Remove every record. Sequence numbering continues from where it was.`,
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("clear")

	n := s.store.Clear()
	if err := s.save(); err != nil {
		s.logger.Error("Failed to clear memory", "error", err)
		return err
	}
	s.logger.Info("Memory cleared", "removed", n)

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d record(s)\n", n)
	return nil
}
