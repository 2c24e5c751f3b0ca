package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/query"
)

var (
	listWhere    string
	listMatch    string
	listCategory string
	listJSON     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records",
	Long: `List records in insertion order. Filters combine with AND.

Examples:
  mosaic list
  mosaic list --category Physics
  mosaic list --match "Found pattern *"
  mosaic list --where 'metadata.category == "Physics" && sequence > 2'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listWhere, "where", "w", "", "expression over sequence, timestamp, payload, metadata")
	listCmd.Flags().StringVar(&listMatch, "match", "", "glob pattern matched against the payload")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "shorthand for metadata category equality")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print records as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	pred, err := query.Filters{Where: listWhere, Match: listMatch, Category: listCategory}.Predicate()
	if err != nil {
		return err
	}

	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("list")

	entries := s.store.Retrieve(pred)
	if listJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func printEntries(w io.Writer, entries []memory.Entry[string]) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "#%-4d %s  %s", e.Sequence, e.Timestamp.Format(time.RFC3339), e.Payload)
		if len(e.Metadata) > 0 {
			fmt.Fprintf(w, "  [%s]", formatMeta(e.Metadata))
		}
		fmt.Fprintln(w)
	}
}

func formatMeta(meta map[string]any) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, meta[k])
	}
	return strings.Join(parts, " ")
}
