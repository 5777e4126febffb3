package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusComponentID string

func init() {
	statusCmd.Flags().StringVar(&statusComponentID, "component", "", "component id to look up (required)")
	statusCmd.MarkFlagRequired("component")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a component's current registry entry",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	hermes, err := resolveHermesURL(hermesURL)
	if err != nil {
		return err
	}

	client, err := dialHermes(hermes)
	if err != nil {
		return err
	}
	defer client.Close()

	descriptor, err := client.Status(cmd.Context(), statusComponentID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
