package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every component currently registered with the fabric",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	hermes, err := resolveHermesURL(hermesURL)
	if err != nil {
		return err
	}

	client, err := dialHermes(hermes)
	if err != nil {
		return err
	}
	defer client.Close()

	descriptors, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	if len(descriptors) == 0 {
		fmt.Println("no components registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTATUS\tENDPOINT")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Version, d.Availability.Status, d.Endpoint)
	}
	return w.Flush()
}
