package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	watchURL     string
	watchTypes   []string
	watchCount   int
	watchJSON    bool
	watchTimeout time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events from a running server",
	Long: `Connect to the WebSocket event stream of a running "mosaic serve" and
print store events as they happen.

Examples:
  mosaic watch
  mosaic watch --types entry.evicted,store.cleared
  mosaic watch --url ws://10.0.0.5:8080/api/ws --json`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8080/api/ws", "event stream URL")
	watchCmd.Flags().StringSliceVar(&watchTypes, "types", nil, "event types to receive (default all)")
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "exit after this many events (0 for no limit)")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print raw JSON events")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 10*time.Second, "connection timeout")
}

// watchEvent mirrors the server's event message.
type watchEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
	ClientID  string                 `json:"client_id,omitempty"`
}

func watchEndpoint() (string, error) {
	u, err := url.Parse(watchURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid url %q: scheme must be ws or wss", watchURL)
	}
	if len(watchTypes) > 0 {
		q := u.Query()
		q.Set("types", strings.Join(watchTypes, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	endpoint, err := watchEndpoint()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: watchTimeout}
	conn, resp, err := dialer.Dial(endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection failed: %v (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	msgCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := cmd.OutOrStdout()
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return closeWatch(conn)
		case <-sigCh:
			return closeWatch(conn)
		case err := <-errCh:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintln(out, "Connection closed by server")
				return nil
			}
			return fmt.Errorf("read error: %v", err)
		case msg := <-msgCh:
			var ev watchEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: ignoring malformed event: %v\n", err)
				continue
			}
			if ev.Type == "connected" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Connected to %s\n", watchURL)
				continue
			}

			if watchJSON {
				fmt.Fprintln(out, string(msg))
			} else {
				printWatchEvent(out, ev)
			}

			seen++
			if watchCount > 0 && seen >= watchCount {
				return closeWatch(conn)
			}
		}
	}
}

func closeWatch(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return nil
}

func printWatchEvent(w io.Writer, ev watchEvent) {
	fmt.Fprintf(w, "%s  %-17s", ev.Timestamp.Local().Format("15:04:05"), ev.Type)

	if seq, ok := ev.Data["sequence"]; ok {
		fmt.Fprintf(w, " #%v", seq)
	}
	if payload, ok := ev.Data["payload"]; ok {
		fmt.Fprintf(w, " %v", payload)
	}
	if meta, ok := ev.Data["metadata"].(map[string]interface{}); ok && len(meta) > 0 {
		fmt.Fprintf(w, "  [%s]", formatMeta(meta))
	}

	var rest []string
	for k, v := range ev.Data {
		switch k {
		case "sequence", "payload", "metadata", "timestamp":
			continue
		}
		rest = append(rest, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(rest)
	if len(rest) > 0 {
		fmt.Fprintf(w, "  %s", strings.Join(rest, " "))
	}
	fmt.Fprintln(w)
}
