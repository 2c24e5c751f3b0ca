package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/mosaic/internal/memory"
)

var (
	removePayload string
	removeKey     string
	removeValue   string
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove matching records",
	Long: `Remove every record whose payload equals --payload, or whose metadata
key --key equals --value.

Examples:
  mosaic remove --payload "Found pattern A"
  mosaic remove --key category --value Physics`,
	Args: cobra.NoArgs,
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringVarP(&removePayload, "payload", "p", "", "payload to match exactly")
	removeCmd.Flags().StringVarP(&removeKey, "key", "k", "", "metadata key to match")
	removeCmd.Flags().StringVar(&removeValue, "value", "", "metadata value to match")
}

func runRemove(cmd *cobra.Command, args []string) error {
	var m memory.Matcher[string]
	if cmd.Flags().Changed("payload") {
		m = memory.MatchPayload(removePayload)
	}
	if cmd.Flags().Changed("key") || cmd.Flags().Changed("value") {
		m.MetadataKey = removeKey
		m.MetadataValue = removeValue
		if !cmd.Flags().Changed("value") {
			m.MetadataValue = nil
		}
	}

	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("remove")

	n, err := s.store.Remove(m)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := s.save(); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s)\n", n)
	return nil
}
