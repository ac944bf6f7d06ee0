package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <content>...",
	Short: "Send a text message into the joined room",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := json.Marshal(map[string]string{
			"content": strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		res, err := http.Post(serverURL+"/messages", "application/json", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		defer res.Body.Close()

		body, _ := io.ReadAll(res.Body)
		if res.StatusCode != http.StatusAccepted {
			return fmt.Errorf("send failed (%s): %s", res.Status, body)
		}
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
