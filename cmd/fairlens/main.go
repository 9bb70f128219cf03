package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fairlens/internal/logging"
)

var (
	// Global flags
	configFile string
	promptYAML string
	outRoot    string
	domainFlag string
	riskFlag   string
	verbose    bool

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fairlens",
	Short: "FairLens - synthetic audit data pipeline",
	Long: `FairLens generates synthetic multimodal audit datasets for probing
bias, toxicity, representation gaps and security risks in AI systems.

The pipeline runs in stages: prompt generation, image and video synthesis,
demographic metadata extraction, and VQA item generation. Every stage is
checkpointed and resumable; rerunning a stage never regenerates artifacts
that are already on disk.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return logging.Initialize(outRoot, verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file (built-in defaults if omitted)")
	rootCmd.PersistentFlags().StringVar(&promptYAML, "prompt-yaml", "", "path to the prompt registry (default <out>/prompts.yaml)")
	rootCmd.PersistentFlags().StringVar(&outRoot, "out", "out", "output root directory")
	rootCmd.PersistentFlags().StringVar(&domainFlag, "domain", "", "restrict to one domain (hiring, legal, healthcare)")
	rootCmd.PersistentFlags().StringVar(&riskFlag, "risk", "", "restrict to one risk (bias, toxicity, representation_gaps, security_risks)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(videosCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(vqaCmd)
	rootCmd.AddCommand(csrVQACmd)
	rootCmd.AddCommand(allStagesCmd)
}

// signalContext cancels on SIGINT/SIGTERM so stages can flush and checkpoint
// before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("interrupt received, finishing current item", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
