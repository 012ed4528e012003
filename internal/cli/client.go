package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveline-app/waveline/internal/app/queue"
	"github.com/waveline-app/waveline/internal/daemon"
	"github.com/waveline-app/waveline/internal/domain"
)

// ─── Daemon Client Commands ─────────────────────────────────────────────────
// status, sync and queue are thin HTTP clients of a running daemon.

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDeadLetterCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status of the running daemon",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st domain.SyncStatus
	if err := daemonGet("/api/status", &st); err != nil {
		return err
	}

	fmt.Printf("Connected:     %v\n", st.Connected)
	fmt.Printf("Syncing:       %v\n", st.SyncInProgress)
	fmt.Printf("Pending:       %d\n", st.PendingCount)
	fmt.Printf("Dead letters:  %d\n", st.DeadLetterCount)
	if st.LastSyncAt.IsZero() {
		fmt.Println("Last sync:     never")
	} else {
		fmt.Printf("Last sync:     %s (%s ago)\n",
			st.LastSyncAt.Format(time.RFC3339), time.Since(st.LastSyncAt).Round(time.Second))
	}
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force a sync pass now",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	var st domain.SyncStatus
	if err := daemonPost("/api/sync", &st); err != nil {
		return err
	}
	fmt.Printf("Sync complete, %d actions pending\n", st.PendingCount)
	return nil
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the offline action queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending actions",
	RunE:  runQueueList,
}

func runQueueList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Count   int                    `json:"count"`
		Actions []domain.OfflineAction `json:"actions"`
	}
	if err := daemonGet("/api/queue", &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tACTOR\tENQUEUED\tATTEMPTS")
	for _, a := range resp.Actions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			a.ID, a.Kind, a.ActorID, a.EnqueuedAt.Format(time.RFC3339), a.Attempts)
	}
	return w.Flush()
}

var queueDeadLetterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "List actions retired after exhausting retries",
	RunE:  runQueueDeadLetter,
}

func runQueueDeadLetter(cmd *cobra.Command, args []string) error {
	var resp struct {
		Count   int                `json:"count"`
		Entries []queue.DeadLetter `json:"entries"`
	}
	if err := daemonGet("/api/queue/deadletter", &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		fmt.Println("No dead letters")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tFAILED\tREASON")
	for _, e := range resp.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Action.ID, e.Action.Kind, e.FailedAt.Format(time.RFC3339), e.Reason)
	}
	return w.Flush()
}

// ─── HTTP Helpers ───────────────────────────────────────────────────────────

func daemonURL(path string) (string, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.API.Addr() + path, nil
}

func daemonGet(path string, out any) error {
	u, err := daemonURL(path)
	if err != nil {
		return err
	}
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func daemonPost(path string, out any) error {
	u, err := daemonURL(path)
	if err != nil {
		return err
	}
	resp, err := http.Post(u, "application/json", nil)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error.Message != "" {
			return fmt.Errorf("daemon: %s", e.Error.Message)
		}
		return fmt.Errorf("daemon: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
