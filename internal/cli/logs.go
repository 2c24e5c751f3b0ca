package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsLines  int
	logsFilter string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the log file",
	Long: `Show the tail of the file configured as logging.file.

Examples:
  mosaic logs                      # Last 50 lines
  mosaic logs --filter entry.evicted
  mosaic logs --follow             # Follow log output`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of lines to show")
	logsCmd.Flags().StringVar(&logsFilter, "filter", "", "only show lines containing this text")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cfg.Logging.File == "" {
		fmt.Fprintln(out, "No log file configured (set logging.file in mosaic.yaml).")
		return nil
	}
	if _, err := os.Stat(cfg.Logging.File); os.IsNotExist(err) && !logsFollow {
		fmt.Fprintln(out, "No logs found.")
		return nil
	}

	if logsFollow {
		return followLogs(cmd, cfg.Logging.File)
	}

	content, err := readLastLines(cfg.Logging.File, logsLines, logsFilter)
	if err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}
	fmt.Fprintln(out, content)
	return nil
}

// followLogs prints lines appended to path until the command context ends.
// The parent directory is watched so a file created or replaced after the
// command starts is picked up from its beginning.
func followLogs(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Following logs... (Ctrl+C to stop)")

	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	t := &logTail{path: path, out: out, filter: logsFilter}
	defer t.close()
	if err := t.open(true); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	for {
		select {
		case <-cmd.Context().Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				t.close()
				if err := t.open(false); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				t.drain()
			case ev.Has(fsnotify.Write):
				if t.file == nil {
					if err := t.open(false); err != nil {
						continue
					}
				}
				t.drain()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				t.close()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: watcher error: %v\n", err)
		}
	}
}

// logTail reads complete lines appended to a file.
type logTail struct {
	path    string
	out     io.Writer
	filter  string
	file    *os.File
	reader  *bufio.Reader
	partial string
}

func (t *logTail) open(atEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	if atEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return err
		}
	}
	t.file = f
	t.reader = bufio.NewReader(f)
	t.partial = ""
	return nil
}

func (t *logTail) drain() {
	if t.reader == nil {
		return
	}
	for {
		chunk, err := t.reader.ReadString('\n')
		t.partial += chunk
		if err != nil {
			return
		}
		line := t.partial
		t.partial = ""
		if t.filter != "" && !strings.Contains(line, t.filter) {
			continue
		}
		fmt.Fprint(t.out, line)
	}
}

func (t *logTail) close() {
	if t.file != nil {
		t.file.Close()
	}
	t.file = nil
	t.reader = nil
}

func readLastLines(path string, n int, filter string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if filter != "" && !strings.Contains(scanner.Text(), filter) {
			continue
		}
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}

	return strings.Join(lines, "\n"), scanner.Err()
}
