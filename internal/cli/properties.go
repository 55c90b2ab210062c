package cli

import (
	"crm-schema-migrator/internal/domain"

	"github.com/spf13/cobra"
)

func newPropertiesCmd(r *runner) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "properties <source|target> <objectType>",
		Short: "List the property catalog of one connected account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := domain.ParseInstance(args[0])
			if err != nil {
				return err
			}
			svc, err := r.services(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			tenant := domain.Tenant{UserID: r.opts.userID, Instance: instance}
			defs, err := svc.Catalog.ListProperties(cmd.Context(), tenant, args[1], refresh)
			if err != nil {
				return err
			}

			tab := table{headers: []string{"NAME", "LABEL", "TYPE", "FIELD TYPE", "GROUP", "BUILT-IN"}}
			for _, d := range defs {
				tab.rows = append(tab.rows, []string{d.Name, d.Label, d.Type, d.FieldType, d.GroupName, yesNo(d.IsBuiltIn)})
			}
			return render(cmd.OutOrStdout(), r.opts.output, defs, tab)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the catalog cache")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
