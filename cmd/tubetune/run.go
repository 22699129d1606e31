package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/hotkey"
	"github.com/tejashwikalptaru/tubetune/internal/app"
)

func newRunCommand(fs afero.Fs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the player and read commands from stdin",
		Long: "Start the player. Commands are read line by line from stdin; type help for the list.\n" +
			"With --keys the terminal is switched to raw mode and single key presses drive playback\n" +
			"as configured under hotkeys.\n" +
			"Interrupting the program shuts it down the same way quit does.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, fs)
			if err != nil {
				return err
			}

			keys := lo.Must(cmd.Flags().GetBool("keys"))
			if keys {
				restore, err := rawInput(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = restore() }()
			}

			opts := app.DefaultOptions(cfg)
			opts.Logger = newCommandLogger(cmd, cfg)
			opts.Hotkeys = keys
			opts.Fs = fs
			opts.MockAudio = lo.Must(cmd.Flags().GetBool("mock-audio"))
			opts.SampleRate = lo.Must(cmd.Flags().GetInt("sample-rate"))
			opts.Input = cmd.InOrStdin()
			opts.Output = cmd.OutOrStdout()

			application, err := app.NewApplication(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return application.Run(ctx)
		},
	}
	cmd.Flags().Bool("mock-audio", false, "Play into an in-memory engine instead of the sound card")
	cmd.Flags().Int("sample-rate", 44100, "Sample rate of the audio output")
	cmd.Flags().Bool("keys", false, "Read single key presses instead of command lines")
	return cmd
}

// rawInput puts the terminal on stdin into raw mode and makes the command's output
// keep its line breaks while it is.
func rawInput(cmd *cobra.Command) (restore func() error, err error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return nil, fmt.Errorf("--keys: %w", hotkey.ErrNotTerminal)
	}
	restore, err = hotkey.MakeRaw(f)
	if err != nil {
		if errors.Is(err, hotkey.ErrNotTerminal) {
			return nil, fmt.Errorf("--keys: %w", err)
		}
		return nil, err
	}
	cmd.SetOut(hotkey.NewlineWriter{W: cmd.OutOrStdout()})
	cmd.SetErr(hotkey.NewlineWriter{W: cmd.ErrOrStderr()})
	return restore, nil
}
