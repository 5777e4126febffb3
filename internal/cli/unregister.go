package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	unregisterComponentID string
	unregisterTektonRoot  string
)

func init() {
	unregisterCmd.Flags().StringVar(&unregisterComponentID, "component", "", "component id to unregister (required)")
	unregisterCmd.Flags().StringVar(&unregisterTektonRoot, "tekton-root", "", "directory tektonctl reads this component's cached token from (defaults to $TEKTON_ROOT or .)")
	unregisterCmd.MarkFlagRequired("component")
	rootCmd.AddCommand(unregisterCmd)
}

var unregisterCmd = &cobra.Command{
	Use:   "unregister",
	Short: "Unregister a component previously registered by this host",
	RunE:  runUnregister,
}

func runUnregister(cmd *cobra.Command, args []string) error {
	hermes, err := resolveHermesURL(hermesURL)
	if err != nil {
		return err
	}

	root := resolveTektonRoot(unregisterTektonRoot)
	token, err := loadToken(root, unregisterComponentID)
	if err != nil {
		return err
	}

	client, err := dialHermes(hermes)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Unregister(cmd.Context(), unregisterComponentID, token); err != nil {
		return err
	}
	removeToken(root, unregisterComponentID)
	fmt.Printf("unregistered %s\n", unregisterComponentID)
	return nil
}
