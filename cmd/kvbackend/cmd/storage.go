package cmd

import (
	"fmt"

	"github.com/jrife/kvbackend/storage"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/spf13/cobra"
)

type collectionFlags struct {
	resource string
	parent   string
	extra    string
}

func (flags *collectionFlags) register(cmd *cobra.Command, defaultParent string) {
	cmd.Flags().StringVar(&flags.resource, "resource", "", "resource name (empty for every resource)")
	cmd.Flags().StringVar(&flags.parent, "parent", defaultParent, "parent id (* for every parent)")
	cmd.Flags().StringVar(&flags.extra, "extra", "", "extra collection scope")
}

func (flags *collectionFlags) collection() keys.Collection {
	return keys.Collection{Resource: flags.resource, Parent: flags.parent, Extra: flags.extra}
}

func newPurgeDeletedCommand(a *app) *cobra.Command {
	flags := collectionFlags{}
	var before int64

	cmd := &cobra.Command{
		Use:   "purge-deleted",
		Short: "Erase tombstones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			purged, err := a.backends.Storage.PurgeDeleted(cmd.Context(), flags.collection(), storage.PurgeOptions{Before: before})

			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "purged %d tombstones\n", purged)

			return nil
		},
	}

	flags.register(cmd, keys.Wildcard)
	cmd.Flags().Int64Var(&before, "before", 0, "only purge tombstones older than this timestamp in milliseconds")

	return cmd
}

func newTimestampCommand(a *app) *cobra.Command {
	flags := collectionFlags{}

	cmd := &cobra.Command{
		Use:   "timestamp",
		Short: "Print the timestamp of a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timestamp, err := a.backends.Storage.ResourceTimestamp(cmd.Context(), flags.collection())

			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), timestamp)

			return nil
		},
	}

	flags.register(cmd, "")
	cmd.MarkFlagRequired("resource")

	return cmd
}
