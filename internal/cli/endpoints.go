package cli

import (
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsrelay/relay-core/internal/endpoint"
	// Register all connector factories.
	_ "github.com/opsrelay/relay-core/pkg/connector"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List registered endpoint templates",
	Run: func(cmd *cobra.Command, args []string) {
		ids := endpoint.DefaultRegistry().List()
		sort.Strings(ids)

		color.Cyan("%d endpoint templates registered:", len(ids))
		for _, id := range ids {
			color.New().Printf("  %s\n", id)
		}
	},
}
