package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tekton-fabric/core/manifest"
)

var (
	generateComponentID string
	generateName        string
	generatePort        int
	generateOutput      string
)

func init() {
	generateCmd.Flags().StringVar(&generateComponentID, "component", "", "component id (required)")
	generateCmd.Flags().StringVar(&generateName, "name", "", "human-readable component name (defaults to --component)")
	generateCmd.Flags().IntVar(&generatePort, "port", 8080, "port the component listens on")
	generateCmd.Flags().StringVar(&generateOutput, "output", "component.yaml", "path to write the generated manifest")
	generateCmd.MarkFlagRequired("component")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a starter component.yaml manifest",
	RunE:  runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	name := generateName
	if name == "" {
		name = generateComponentID
	}

	m := manifest.Manifest{
		Component: manifest.ComponentInfo{
			ID:      generateComponentID,
			Name:    name,
			Version: "0.1.0",
			Port:    generatePort,
		},
		Capabilities: []manifest.Capability{
			{
				ID:   "example",
				Name: "Example capability",
				Methods: []manifest.Method{
					{ID: "ping", Name: "Ping", Returns: "string"},
				},
			},
		},
	}

	if err := m.Validate(); err != nil {
		return fmt.Errorf("generated manifest is invalid: %w", err)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(generateOutput, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	fmt.Printf("wrote %s\n", generateOutput)
	return nil
}
