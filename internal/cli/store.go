package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var storeMeta []string

var storeCmd = &cobra.Command{
	Use:   "store <payload>",
	Short: "Store a record",
	Long: `Append a record to the store. When the store is at capacity the oldest
record is evicted first.

Examples:
  mosaic store "Found pattern A" --meta category=Physics
  mosaic store "Found pattern B" -m category=Chemistry -m source=lab`,
	Args: cobra.ExactArgs(1),
	RunE: runStore,
}

func init() {
	storeCmd.Flags().StringArrayVarP(&storeMeta, "meta", "m", nil, "metadata as key=value (repeatable)")
}

func runStore(cmd *cobra.Command, args []string) error {
	metadata, err := parseMeta(storeMeta)
	if err != nil {
		return err
	}

	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("store")

	entry := s.store.Insert(args[0], metadata)
	if err := s.save(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored #%d (%d/%d)\n", entry.Sequence, s.store.Len(), s.store.Capacity())
	return nil
}

// parseMeta converts key=value pairs into a metadata map.
func parseMeta(pairs []string) (map[string]any, error) {
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}
