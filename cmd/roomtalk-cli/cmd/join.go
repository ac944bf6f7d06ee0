package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <room-code>",
	Short: "Join a room on the running instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := fmt.Sprintf("%s/rooms/%s/join", serverURL, url.PathEscape(args[0]))
		res, err := http.Post(endpoint, "application/json", nil)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		body, _ := io.ReadAll(res.Body)
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("join failed (%s): %s", res.Status, body)
		}
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
