package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/babelcloud/mkvblock/config"
	"github.com/babelcloud/mkvblock/internal/version"
	"github.com/babelcloud/mkvblock/matroska"
)

var (
	colorMode string
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "mkvblock",
		Short: "Matroska block encoding tool",
		Long:  `mkvblock lays out, inspects and re-laces Matroska and WebM blocks. It works on the cluster level and never decodes frame payloads.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupColor(colorMode); err != nil {
				return err
			}
			return setupLogger(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.Info()
				fmt.Printf("mkvblock version %s, build %s\n", info["Version"], info["GitCommit"])
				return nil
			}
			return cmd.Help()
		},
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "Colorize output (auto, always or never)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides MKVBLOCK_LOG_LEVEL")

	rootCmd.RegisterFlagCompletionFunc("color", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "always", "never"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(NewLacingCommand())
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewRelaceCommand())
	rootCmd.AddCommand(NewVersionCommand())
}

func setupColor(mode string) error {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
	default:
		return errors.Errorf("invalid color mode %q", mode)
	}
	return nil
}

func setupLogger(override string) error {
	level, err := config.GetLogLevel()
	if err != nil {
		return err
	}
	if override != "" {
		if err := level.UnmarshalText([]byte(override)); err != nil {
			return errors.Wrap(err, "--log-level")
		}
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	matroska.SetLogger(logger.With("component", "matroska"))
	return nil
}
