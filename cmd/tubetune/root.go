package main

import (
	"log/slog"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/storage"
	"github.com/tejashwikalptaru/tubetune/internal/config"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
)

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"library":    "output.folder",
	"format":     "download.format",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// newRootCommand builds the command tree over fs, which holds both the config file and the library.
func newRootCommand(fs afero.Fs) *cobra.Command {
	root := &cobra.Command{
		Use:          config.AppName,
		Short:        "Download playlists and play them from the terminal",
		Long:         "TubeTune downloads remote playlists into a local library and plays them while the rest is still downloading.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Config file (default is $XDG_CONFIG_HOME/tubetune/config.yaml)")
	root.PersistentFlags().StringP("library", "l", "", "Library folder")
	root.PersistentFlags().StringP("format", "f", "", "Audio format of downloaded tracks")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "Log format (text or json)")
	lo.Must0(root.RegisterFlagCompletionFunc("log-format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	}))

	root.AddCommand(
		newRunCommand(fs),
		newVersionCommand(),
		newIDsCommand(fs),
		newPlaylistsCommand(fs),
	)
	return root
}

// loadConfig reads the config file named by --config with the changed flags layered on top.
func loadConfig(cmd *cobra.Command, fs afero.Fs) (config.Config, error) {
	flags := cmd.Flags()
	bound := make(map[string]*pflag.Flag, len(flagKeys))
	for name, key := range flagKeys {
		if flag := flags.Lookup(name); flag != nil && flag.Changed {
			bound[key] = flag
		}
	}
	return config.Load(fs, lo.Must(flags.GetString("config")), bound)
}

// newCommandLogger logs to the command's stderr.
func newCommandLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	logCfg := cfg.Logger()
	logCfg.Output = cmd.ErrOrStderr()
	return logger.NewLogger(logCfg)
}

// openLayout returns the library layout without creating any folder.
func openLayout(cfg config.Config) storage.Layout {
	return storage.NewLayout(cfg.Output.Folder, cfg.DownloadParams().Format)
}
