// Command mailsync mirrors IMAP mailboxes into local topics and pushes
// local topic changes back to the server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/model"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
)

type ctxKey struct{}

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	cfg        *model.AppConfig
}

func main() {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:           "mailsync",
		Short:         "Synchronize IMAP mailboxes with local topics",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(o.configPath)
			if err != nil {
				return err
			}
			o.cfg = cfg
			if err := setupLogging(o.logLevel, cfg.LogLevel); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), ctxKey{}, o))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", model.DefaultConfigPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level (overrides the configuration)")

	rootCmd.AddCommand(
		newRunCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newCredentialsCmd(),
		newTagsCmd(),
		newRawCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("mailsync failed")
		os.Exit(1)
	}
}

func versionString() string {
	if commit != "" {
		return fmt.Sprintf("%s (%s)", version, commit)
	}
	return version
}

// optionsFrom returns the options bound by the root command.
func optionsFrom(cmd *cobra.Command) *options {
	return cmd.Context().Value(ctxKey{}).(*options)
}

func setupLogging(flagLevel, cfgLevel string) error {
	name := cfgLevel
	if flagLevel != "" {
		name = flagLevel
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
