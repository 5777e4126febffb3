package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tekton-fabric/core/manifest"
	"github.com/tekton-fabric/core/registry"
)

var (
	registerComponentID string
	registerConfigPath  string
	registerTektonRoot  string
)

func init() {
	registerCmd.Flags().StringVar(&registerComponentID, "component", "", "component id to register (required)")
	registerCmd.Flags().StringVar(&registerConfigPath, "config", ".", "path to component.yaml or its containing directory")
	registerCmd.Flags().StringVar(&registerTektonRoot, "tekton-root", "", "directory tektonctl caches this component's token under (defaults to $TEKTON_ROOT or .)")
	registerCmd.MarkFlagRequired("component")
	rootCmd.AddCommand(registerCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a component with the fabric and hold its token until interrupted",
	RunE:  runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	hermes, err := resolveHermesURL(hermesURL)
	if err != nil {
		return err
	}

	m, err := manifest.Load(registerConfigPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if m.Component.ID != registerComponentID {
		return fmt.Errorf("manifest component id %q does not match --component %q", m.Component.ID, registerComponentID)
	}

	client, err := dialHermes(hermes)
	if err != nil {
		return err
	}
	defer client.Close()

	descriptor := registry.ComponentDescriptor{
		ID:           m.Component.ID,
		Name:         m.Component.Name,
		Version:      m.Component.Version,
		Capabilities: m.CapabilityIDs(),
	}
	if m.Component.Port != 0 {
		descriptor.Endpoint = fmt.Sprintf(":%d", m.Component.Port)
	}

	ctx := cmd.Context()
	token, err := client.Register(ctx, descriptor, nil)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (token %s, expires %s)\n", m.Component.ID, token.TokenID, token.ExpiresAt.Format(time.RFC3339))

	root := resolveTektonRoot(registerTektonRoot)
	if err := saveToken(root, m.Component.ID, token); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not cache token for a later unregister:", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Unregister(unregCtx, m.Component.ID, token); err != nil {
		return fmt.Errorf("unregister on shutdown: %w", err)
	}
	removeToken(root, m.Component.ID)
	fmt.Printf("unregistered %s\n", m.Component.ID)
	return nil
}
