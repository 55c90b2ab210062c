package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpgradeCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade-legacy",
		Short: "Rewrite a legacy mappings document into canonical keys",
		Long: `Upgrade-legacy rewrites the user's stored mappings from the legacy untyped layout
into the current one. Reads already upgrade transparently; this persists the result.
Running it on an already upgraded document changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			upgraded, err := svc.Mappings.UpgradeLegacy(cmd.Context(), r.opts.userID)
			if err != nil {
				return err
			}
			msg := "mappings already up to date"
			if upgraded {
				msg = "mappings upgraded"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
}
