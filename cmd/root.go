package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/olivierlemasle/cloud-init/internal/app"
	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	apperrors "github.com/olivierlemasle/cloud-init/internal/errors"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	stateDir  string
)

var rootCmd = &cobra.Command{
	Use:   "cloud-init",
	Short: "Configures an instance at boot from platform-provided metadata.",
	Long: `cloud-init probes the platform the instance is running on (EC2 metadata
service, NoCloud seed, embedded document), fetches instance metadata and user
data, and applies configuration modules in staged, dependency-ordered runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Run the early boot stages (local and network).",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), []domain.Stage{domain.StageLocal, domain.StageNetwork})
	},
}

var modulesMode string

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Run a late boot stage (config or final).",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch modulesMode {
		case "config":
			return runStages(cmd.Context(), []domain.Stage{domain.StageConfig})
		case "final":
			return runStages(cmd.Context(), []domain.Stage{domain.StageFinal})
		default:
			return fmt.Errorf("invalid --mode %q: must be 'config' or 'final'", modulesMode)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which modules have run and under what scope.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApplication(cmd.Context())
		if err != nil {
			return err
		}
		records, err := application.Status(cmd.Context())
		if err != nil {
			return reportError(err)
		}
		if len(records) == 0 {
			fmt.Println("no modules have completed yet")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s\t%s\t%s\t%s\n", r.Module, r.Scope, r.Outcome, r.RanAt.Format(time.RFC3339))
		}
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached metadata and run semaphores so the next boot starts fresh.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApplication(cmd.Context())
		if err != nil {
			return err
		}
		if err := application.Clean(cmd.Context()); err != nil {
			return reportError(err)
		}
		fmt.Println("instance state cleaned")
		return nil
	},
}

func runStages(ctx context.Context, stages []domain.Stage) error {
	application, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	if _, err := application.RunStages(ctx, stages); err != nil {
		return reportError(err)
	}
	return nil
}

func buildApplication(ctx context.Context) (*app.Application, error) {
	application, err := app.BuildApplicationFromViper(ctx, viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Application initialization failed: %v\n", err)
		if appErr := (*apperrors.AppError)(nil); errors.As(err, &appErr) {
			if appErr.IsUserFacing {
				fmt.Fprintf(os.Stderr, "Error Details: %s\n", appErr.Message)
				if appErr.SuggestedAction != "" {
					fmt.Fprintf(os.Stderr, "Suggestion: %s\n", appErr.SuggestedAction)
				}
			}
		}
		return nil, err
	}
	return application, nil
}

func reportError(err error) error {
	userMsg, suggestion, _ := apperrors.GetUserFacingMessage(err)
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", userMsg)
	if suggestion != "" {
		fmt.Fprintf(os.Stderr, "Suggestion: %s\n", suggestion)
	}
	return err
}

func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default is /etc/cloud-init.yaml or ./cloud-init.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Override the directory holding cached metadata and semaphores")

	viper.BindPFlag("settings.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("settings.log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("settings.state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))

	modulesCmd.Flags().StringVar(&modulesMode, "mode", "config", "Stage to run: 'config' or 'final'")

	viper.SetEnvPrefix("CLOUDINIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanCmd)
}

func initializeConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc")
		viper.SetConfigName("cloud-init")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return apperrors.Wrap(err, apperrors.CodeConfigReadError, "failed to read config file")
		}
	}

	return nil
}
