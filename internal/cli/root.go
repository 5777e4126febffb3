package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	envHermesURL  = "HERMES_URL"
	envTektonRoot = "TEKTON_ROOT"
)

var hermesURL string

var rootCmd = &cobra.Command{
	Use:   "tektonctl",
	Short: "tektonctl registers and inspects components on a tekton fabric",
	Long: `tektonctl is the registration helper for the tekton service fabric.

It speaks the same bus request/response protocol the fabric's Registration
Manager serves over HERMES_URL, so register/unregister/status/list all work
against a running fabric process without needing an HTTP or gRPC client.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hermesURL, "hermes-url", os.Getenv(envHermesURL),
		"bus address of the running fabric (defaults to $HERMES_URL)")
}

// Execute runs the root command. Called from cmd/tektonctl/main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveHermesURL(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	return "", fmt.Errorf("no hermes address: pass --hermes-url or set %s", envHermesURL)
}

func resolveTektonRoot(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envTektonRoot); v != "" {
		return v
	}
	return "."
}
