package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cellprobehq/agent/internal/config"
)

type verifyFlags struct {
	pubKeyPath    string
	signaturePath string
}

func (f *verifyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pubKeyPath, "config-pubkey", "", "Minisign public key; when set the configuration must carry a valid signature")
	cmd.Flags().StringVar(&f.signaturePath, "config-sig", "", "Detached signature path (default <config>"+config.SignatureSuffix+")")
}

// loadConfig resolves, verifies, loads and validates the configuration.
// Every failure is a configuration error.
func loadConfig(cmd *cobra.Command, opts *rootOptions, verify verifyFlags) (config.Config, string, error) {
	ctx := cmd.Context()
	path := config.ResolvePath(opts.configPath)
	if verify.pubKeyPath != "" {
		verifier, err := config.NewVerifierFromFile(verify.pubKeyPath)
		if err != nil {
			return config.Config{}, path, configError(err)
		}
		if err := verifier.VerifyFile(ctx, path, verify.signaturePath); err != nil {
			return config.Config{}, path, configError(err)
		}
	}
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return config.Config{}, path, configError(err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, path, configError(err)
	}
	return cfg, path, nil
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the experiment configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(opts), newConfigDumpCommand(opts))
	return cmd
}

func newConfigValidateCommand(opts *rootOptions) *cobra.Command {
	var verify verifyFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := loadConfig(cmd, opts, verify)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
	verify.register(cmd)
	return cmd
}

func newConfigDumpCommand(opts *rootOptions) *cobra.Command {
	var (
		verify verifyFlags
		out    string
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, opts, verify)
			if err != nil {
				return err
			}
			if out != "" {
				return config.Write(out, cfg.Redacted())
			}
			return config.Encode(cmd.OutOrStdout(), cfg.Redacted())
		},
	}
	verify.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Write the dump to this file instead of stdout")
	return cmd
}
