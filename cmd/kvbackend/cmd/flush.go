package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	targetStorage    = "storage"
	targetCache      = "cache"
	targetPermission = "permission"
	targetAll        = "all"
)

func newFlushCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "flush [storage|cache|permission|all]",
		Short:     "Erase the data of one backend or of all of them",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{targetStorage, targetCache, targetPermission, targetAll},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetAll

			if len(args) == 1 {
				target = args[0]
			}

			ctx := cmd.Context()
			flushers := map[string]func(context.Context) error{
				targetStorage:    a.backends.Storage.Flush,
				targetCache:      a.backends.Cache.Flush,
				targetPermission: a.backends.Permission.Flush,
			}

			targets := []string{target}

			switch target {
			case targetAll:
				targets = []string{targetStorage, targetCache, targetPermission}
			case targetStorage, targetCache, targetPermission:
			default:
				return errors.Errorf("unknown backend %q", target)
			}

			for _, t := range targets {
				if err := flushers[t](ctx); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "flushed %s\n", t)
			}

			return nil
		},
	}
}
