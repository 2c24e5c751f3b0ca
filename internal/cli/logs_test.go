package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCLI_LogsFollow(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "mosaic.log")
	cfg, _ := newProject(t, "")
	content, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	content = []byte(strings.Replace(string(content), "level: error",
		"level: error\n  file: "+logFile, 1))
	if err := os.WriteFile(cfg, content, 0644); err != nil {
		t.Fatal(err)
	}

	resetFlags(rootCmd)
	out := &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs([]string{"--config", cfg, "logs", "--follow", "--filter", "keep"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	waitFor := func(substr string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), substr) {
			if time.Now().After(deadline) {
				cancel()
				t.Fatalf("timed out waiting for %q, got:\n%s", substr, out.String())
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	waitFor("Following logs")
	time.Sleep(200 * time.Millisecond)

	f, err := os.Create(logFile)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("keep one\ndrop this\n")
	f.WriteString("keep tw")
	f.Sync()
	time.Sleep(100 * time.Millisecond)
	f.WriteString("o\n")
	f.Close()

	waitFor("keep two\n")
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("logs --follow returned error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "keep one\n") {
		t.Errorf("missing first line:\n%s", got)
	}
	if strings.Contains(got, "drop this") {
		t.Errorf("filter not applied:\n%s", got)
	}
}
