// Package cmd implements the kvbackend maintenance commands
package cmd

import (
	"github.com/jrife/kvbackend/config"
	"github.com/jrife/kvbackend/utils/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	configPath string
	logLevel   string
	logger     *zap.Logger
	backends   *config.Backends
}

// NewRootCommand builds the kvbackend command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "kvbackend",
		Short:        "Maintain the storage, cache and permission data of a KV store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}

			cmd.SetContext(log.WithLogger(cmd.Context(), a.logger.With(zap.String("command", cmd.CommandPath()))))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./kvbackend.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn, error or none (overrides log_level)")

	root.AddCommand(
		newFlushCommand(a),
		newPurgeDeletedCommand(a),
		newTimestampCommand(a),
		newACLCommand(a),
	)

	return root
}

func (a *app) open() error {
	c, err := config.Load(a.configPath)

	if err != nil {
		return err
	}

	if a.logLevel != "" {
		c.LogLevel = a.logLevel
	}

	if a.logger, err = log.New(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}

	if a.backends, err = config.Open(c, config.Options{Logger: a.logger}); err != nil {
		return err
	}

	a.logger.Debug("backends opened", zap.String("storage", c.Storage.URL))

	return nil
}

func (a *app) close() error {
	if a.backends == nil {
		return nil
	}

	err := a.backends.Close()
	a.backends = nil
	a.logger.Sync()

	return err
}
