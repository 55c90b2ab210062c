package cli

import (
	"errors"
	"fmt"
	"strconv"

	"crm-schema-migrator/internal/infrastructure/pubsub"

	"github.com/spf13/cobra"
)

func newMigrateCmd(r *runner) *cobra.Command {
	var (
		objectTypes []string
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the user-defined properties missing in the target account",
		Long: `Migrate creates every user-defined property of the given object types in the
target account. Properties created by an earlier run are skipped without calling
the CRM, so the command is safe to run repeatedly.

Progress is written to stderr as each property finishes; the summary goes to stdout.
Interrupting the command lets the property in flight finish.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(objectTypes) == 0 {
				return fmt.Errorf("--object-types is required")
			}

			svc, err := r.services(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			var progressDone chan struct{}
			if !quiet && svc.Events != nil {
				sub := svc.Events.Subscribe(ctx, &pubsub.MigrationEventFilter{UserID: r.opts.userID})
				progressDone = make(chan struct{})
				go func() {
					defer close(progressDone)
					for o := range sub.Events {
						fmt.Fprintf(cmd.ErrOrStderr(), "%-14s %s/%s %s\n", o.Outcome, o.ObjectType, o.Name, o.Reason)
					}
				}()
				defer func() {
					svc.Events.Unsubscribe(sub.ID)
					<-progressDone
				}()
			}

			result, err := svc.Migrations.Migrate(ctx, r.opts.userID, objectTypes)
			if result == nil {
				return err
			}

			tab := table{
				headers: []string{"RUN", "CREATED", "ALREADY EXISTS", "FAILED"},
				rows: [][]string{{
					result.RunID,
					strconv.Itoa(result.CreatedCount),
					strconv.Itoa(result.AlreadyExistsCount),
					strconv.Itoa(result.FailedCount),
				}},
			}
			if renderErr := render(cmd.OutOrStdout(), r.opts.output, result, tab); renderErr != nil {
				return errors.Join(err, renderErr)
			}
			if err != nil {
				return err
			}
			if result.FailedCount > 0 {
				return fmt.Errorf("%d properties failed", result.FailedCount)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&objectTypes, "object-types", "t", nil, "Object types to migrate (comma separated)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print per-property progress")
	return cmd
}
