package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the joined room's timeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := http.Get(serverURL + "/timeline")
		if err != nil {
			return err
		}
		defer res.Body.Close()

		var timeline struct {
			Room     string `json:"room"`
			State    string `json:"state"`
			Degraded bool   `json:"degraded"`
			Records  []struct {
				Content   string    `json:"content"`
				SessionID string    `json:"session_id"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"records"`
		}
		if err := json.NewDecoder(res.Body).Decode(&timeline); err != nil {
			return fmt.Errorf("malformed timeline response: %w", err)
		}

		if timeline.Room == "" {
			fmt.Println("No room joined.")
			return nil
		}
		fmt.Printf("Room %s (%s", timeline.Room, timeline.State)
		if timeline.Degraded {
			fmt.Print(", degraded")
		}
		fmt.Printf("), %d message(s):\n", len(timeline.Records))

		for _, rec := range timeline.Records {
			fmt.Printf("  [%s] %s: %s\n",
				rec.CreatedAt.Local().Format("15:04:05"),
				shortID(rec.SessionID), rec.Content)
		}
		return nil
	},
}

func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
