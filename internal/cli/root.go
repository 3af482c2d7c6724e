package cli

import (
	"context"
	"flag"
	"os"

	"github.com/spf13/cobra"

	"github.com/weibaohui/decision-council/config"
	"github.com/weibaohui/decision-council/internal/bootstrap"
)

// Execute 运行 councilctl，klog 的 -v 等参数挂在根命令上
func Execute() error {
	cmd := NewRootCmd()
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	return cmd.Execute()
}

type rootOptions struct {
	configPath string
	backend    string
	persist    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "councilctl",
		Short:         "Run decision council consultations from the terminal",
		Long:          "councilctl runs the full council pipeline locally (mock backend by default), previews how a question shifts advisor emphasis, and verifies signed audit entries.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: $CONFIG_PATH or config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "mock", "generation backend: mock, http or eino")
	rootCmd.PersistentFlags().BoolVar(&opts.persist, "persist", false, "store consultations, cost and audit entries in the configured database")

	rootCmd.AddCommand(
		newConsultCmd(opts),
		newWeightsCmd(opts),
		newVerifyCmd(),
	)
	return rootCmd
}

// loadConfig 本地运行默认不持久化、不限流
func (o *rootOptions) loadConfig() *config.Config {
	var cfg *config.Config
	if o.configPath != "" {
		cfg = config.LoadFile(o.configPath)
	} else {
		cfg = config.Load()
	}
	if o.backend != "" {
		cfg.LLM.Backend = o.backend
	}
	cfg.RateLimit.Enabled = false
	if !o.persist {
		cfg.Database.Type = "none"
		cfg.Audit.Enabled = false
	}
	return cfg
}

func (o *rootOptions) wireApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.New(ctx, o.loadConfig())
}

func auditKeyFromEnv() string {
	return os.Getenv("COUNCIL_AUDIT_KEY")
}
