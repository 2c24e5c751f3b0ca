package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/mosaic/internal/config"
)

var (
	initTemplate string
	initList     bool
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a mosaic project",
	Long: `Write a mosaic.yaml from a template and create the .mosaic data directory.

Run with --list to see the available templates.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "default", "project template")
	initCmd.Flags().BoolVar(&initList, "list", false, "list available templates")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing mosaic.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if initList {
		fmt.Fprintln(out, "Available templates:")
		for _, t := range config.Templates() {
			fmt.Fprintf(out, "  %-10s %s\n", t.Name, t.Description)
		}
		return nil
	}

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg, err := config.FromTemplate(initTemplate, filepath.Base(abs))
	if err != nil {
		return err
	}

	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Join(dir, ".mosaic"), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := config.Write(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Initialized %s project in %s\n", initTemplate, abs)
	fmt.Fprintf(out, "  capacity: %d\n", cfg.Store.Capacity)
	fmt.Fprintf(out, "  snapshot: %s (%s)\n", cfg.Snapshot.Driver, cfg.Snapshot.Path)
	fmt.Fprintln(out, "\nNext: mosaic store \"first record\" --meta category=notes")
	return nil
}
