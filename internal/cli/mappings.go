package cli

import (
	"fmt"
	"strconv"

	"crm-schema-migrator/internal/application"

	"github.com/spf13/cobra"
)

func newMappingsCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and edit property mappings",
	}
	cmd.AddCommand(
		newMappingsListCmd(r),
		newMappingsWriteCmd(r, "set", "Remap an existing custom or user-defined property", false),
		newMappingsWriteCmd(r, "add", "Declare a new user-defined property", true),
		newMappingsRmCmd(r),
	)
	return cmd
}

func newMappingsListCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <objectType>",
		Short: "List the reconciled mapping rows of an object type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			rows, err := svc.Mappings.Rows(cmd.Context(), r.opts.userID, args[0])
			if err != nil {
				return err
			}

			tab := table{headers: []string{"SOURCE", "SOURCE LABEL", "TARGET", "TARGET LABEL", "CATEGORY", "CREATED", "VERSION"}}
			for _, m := range rows {
				tab.rows = append(tab.rows, []string{
					m.SourceIdentity, m.SourceLabel, m.TargetIdentity, m.TargetLabel,
					string(m.Category), yesNo(m.RemotelyCreated), strconv.FormatInt(m.Version, 10),
				})
			}
			return render(cmd.OutOrStdout(), r.opts.output, rows, tab)
		},
	}
}

func newMappingsWriteCmd(r *runner, use, short string, add bool) *cobra.Command {
	var (
		edit            application.MappingEdit
		expectedVersion int64
	)
	cmd := &cobra.Command{
		Use:   use + " <objectType>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edit.ObjectType = args[0]
			if cmd.Flags().Changed("expected-version") {
				edit.ExpectedVersion = &expectedVersion
			}

			svc, err := r.services(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			write := svc.Mappings.Edit
			if add {
				write = svc.Mappings.AddUserDefined
			}
			row, err := write(cmd.Context(), r.opts.userID, edit)
			if err != nil {
				return err
			}

			tab := table{
				headers: []string{"SOURCE", "TARGET", "TARGET LABEL", "CATEGORY", "VERSION"},
				rows: [][]string{{
					row.SourceIdentity, row.TargetIdentity, row.TargetLabel, string(row.Category), strconv.FormatInt(row.Version, 10),
				}},
			}
			return render(cmd.OutOrStdout(), r.opts.output, row, tab)
		},
	}
	cmd.Flags().StringVar(&edit.SourceName, "source-name", "", "Internal name of the source property")
	cmd.Flags().StringVar(&edit.SourceLabel, "source-label", "", "Label of the source property")
	cmd.Flags().StringVar(&edit.TargetName, "target-name", "", "Internal name in the target account")
	cmd.Flags().StringVar(&edit.TargetLabel, "target-label", "", "Label in the target account")
	cmd.Flags().Int64Var(&expectedVersion, "expected-version", 0, "Fail unless the stored record has this version")
	return cmd
}

func newMappingsRmCmd(r *runner) *cobra.Command {
	var del application.MappingDelete
	cmd := &cobra.Command{
		Use:   "rm <objectType>",
		Short: "Remove a persisted mapping; removing an absent mapping is a no-op",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			del.ObjectType = args[0]

			svc, err := r.services(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			removed, err := svc.Mappings.Delete(cmd.Context(), r.opts.userID, del)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			return err
		},
	}
	cmd.Flags().StringVar(&del.SourceName, "source-name", "", "Internal name of the source property")
	cmd.Flags().StringVar(&del.SourceLabel, "source-label", "", "Label of the source property")
	cmd.Flags().StringVar(&del.TargetName, "target-name", "", "Internal name in the target account")
	cmd.Flags().StringVar(&del.TargetLabel, "target-label", "", "Label in the target account")
	return cmd
}
