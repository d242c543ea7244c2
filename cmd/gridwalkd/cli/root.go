// Package cli implements gridwalkd's command-line surface with cobra, in
// place of tusd's bare flag package (see DESIGN.md "Deviations").
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the top-level "gridwalkd" command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "gridwalkd",
		Short:   "gridwalkd ingests geospatial layers and serves them as vector tiles",
		Version: version,
	}
	root.AddCommand(NewServeCommand())
	return root
}
