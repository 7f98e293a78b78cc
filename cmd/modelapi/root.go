package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modelapi/internal/config"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "modelapi",
		Short:         "Blocking HTTP API in front of one loaded language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Env files loaded before MODELAPI_* variables are read")

	root.AddCommand(newServeCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "modelapi", version)
			return err
		},
	}
}

// resolveConfig layers defaults, env files, MODELAPI_* variables, the config
// file and finally any flag the user set explicitly.
func resolveConfig(cmd *cobra.Command, opts *rootOptions, flags *serveFlags) (config.Config, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return config.Config{}, err
	}
	cfg := config.Default()
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if opts.configPath != "" {
		if err := config.LoadInto(opts.configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	flags.apply(cmd, &cfg)
	return cfg, cfg.Normalize()
}
