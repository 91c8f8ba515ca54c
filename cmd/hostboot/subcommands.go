package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hostboot-dev/hostboot/internal/bootstrap"
)

// Run a full bootstrap sequence
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the host bootstrap sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := bootstrap.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if staging, _ := cmd.Flags().GetString("staging-dir"); staging != "" {
				cfg.StagingDir = staging
			}
			if skip, _ := cmd.Flags().GetBool("skip-packages"); skip {
				cfg.SkipPackages = true
			}

			instanceName, _ := cmd.Flags().GetString("instance-name")
			environment, _ := cmd.Flags().GetString("environment")
			repoURL, _ := cmd.Flags().GetString("scripts-repository-url")
			aliases, _ := cmd.Flags().GetString("script-aliases")
			parameters, _ := cmd.Flags().GetString("script-parameters")
			webhookURL, _ := cmd.Flags().GetString("webhook-url")
			initScript, _ := cmd.Flags().GetString("init-script")

			opts := bootstrap.Options{
				InstanceName:  instanceName,
				Environment:   environment,
				RepositoryURL: repoURL,
				Aliases:       strings.Fields(aliases),
				RawParameters: parameters,
				WebhookURL:    webhookURL,
				InitScript:    initScript,
			}
			return bootstrap.New(cfg, opts).Run(cmd.Context())
		},
	}
	cmd.Flags().String("instance-name", "", "name of this instance")
	cmd.Flags().String("environment", "", "environment tag")
	cmd.Flags().String("scripts-repository-url", "", "URL of the alias-to-URL script repository")
	cmd.Flags().String("script-aliases", "", "space-separated list of script aliases")
	cmd.Flags().String("script-parameters", "{}", "JSON map of per-alias script parameters")
	cmd.Flags().String("webhook-url", "", "webhook URL for the status report")
	cmd.Flags().String("init-script", "", "inline custom initialization script")
	cmd.Flags().String("staging-dir", "", "override staging directory")
	cmd.Flags().Bool("skip-packages", false, "skip baseline package installation")
	_ = cmd.MarkFlagRequired("instance-name")
	_ = cmd.MarkFlagRequired("environment")
	return cmd
}

// Generate shell completion scripts
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion script",
		ValidArgs: []string{"bash", "zsh", "fish"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			}
			return fmt.Errorf("unsupported shell: %s", args[0])
		},
	}
}
