package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/mosaic/internal/config"
	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/persist"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and snapshot storage",
	Long:  "Validate that the configuration loads, the snapshot backend opens and the saved snapshot decodes.",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "mosaic doctor: checking your environment")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  Go version: %s ✓\n", runtime.Version())
	fmt.Fprintf(out, "  Platform:   %s/%s ✓\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  Config:     INVALID ✗\n    → %v\n", err)
		if s := mosaicerrors.Suggestion(err); s != "" {
			fmt.Fprintf(out, "    → %s\n", s)
		}
		fmt.Fprintln(out, "\nSome checks failed. See above for details.")
		return nil
	}
	fmt.Fprintf(out, "  Config:     %s v%s (capacity %d) ✓\n", cfg.Name, cfg.Version, cfg.Store.Capacity)

	if checkSnapshot(out, cfg) {
		fmt.Fprintln(out, "\nAll checks passed!")
	} else {
		fmt.Fprintln(out, "\nSome checks failed. See above for details.")
	}
	return nil
}

func checkSnapshot(out io.Writer, cfg *config.Config) bool {
	backend, err := persist.NewBackend(cfg.Snapshot.Driver, cfg.Snapshot.Path, cfg.Snapshot.Retain)
	if err != nil {
		fmt.Fprintf(out, "  Backend:    FAILED (%s) ✗\n", err)
		return false
	}
	defer backend.Close()
	fmt.Fprintf(out, "  Backend:    %s (%s) ✓\n", cfg.Snapshot.Driver, cfg.Snapshot.Path)

	data, err := backend.Read(cfg.Snapshot.Name)
	if errors.Is(err, mosaicerrors.ErrSnapshotNotFound) {
		fmt.Fprintf(out, "  Snapshot:   %q not saved yet ✓\n", cfg.Snapshot.Name)
		return true
	}
	if err != nil {
		fmt.Fprintf(out, "  Snapshot:   FAILED (%s) ✗\n", err)
		return false
	}

	// A scratch store validates the snapshot without touching saved state.
	restored, err := memory.New[string](cfg.Store.Capacity)
	if err != nil {
		fmt.Fprintf(out, "  Snapshot:   FAILED (%s) ✗\n", err)
		return false
	}
	if err := restored.ImportSnapshot(data, false); err != nil {
		fmt.Fprintf(out, "  Snapshot:   CORRUPT (%s) ✗\n", err)
		return false
	}
	fmt.Fprintf(out, "  Snapshot:   %q, %d record(s) ✓\n", cfg.Snapshot.Name, restored.Len())

	if cfg.Logging.File != "" {
		if _, err := os.Stat(cfg.Logging.File); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(out, "  Log file:   FAILED (%s) ✗\n", err)
			return false
		}
	}
	return true
}
