package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-harvester/internal/app"
)

// migrateFn is replaced in tests.
var migrateFn = app.Migrate

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Create or update the store schema",
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE: withInvocation(false, func(cmd *cobra.Command, rt *invocation) error {
			down, _ := cmd.Flags().GetBool("down")
			return migrateFn(cmd.Context(), rt.cfg, down, rt.logger)
		}),
	}
	cmd.Flags().Bool("down", false, "roll back every migration (postgres only)")
	return cmd
}
