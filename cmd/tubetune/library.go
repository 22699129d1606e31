package main

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/tubetune/internal/adapter/storage"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// newIDsCommand shows the name and ID a title would be stored under.
func newIDsCommand(fs afero.Fs) *cobra.Command {
	return &cobra.Command{
		Use:   "ids <title>...",
		Short: "Show the stored name and ID of titles",
		Long:  "Show the filesystem-safe name and the ID each title maps to, and whether the library already knows the ID.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, fs)
			if err != nil {
				return err
			}
			table := storage.NewIDTable(fs, openLayout(cfg), newCommandLogger(cmd, cfg).With(slog.String("component", "ids")))

			r := lipgloss.NewRenderer(cmd.OutOrStdout())
			known := r.NewStyle().Foreground(lipgloss.Color("42"))
			fresh := r.NewStyle().Foreground(lipgloss.Color("240"))

			for _, title := range args {
				name := domain.SanitizeName(title)
				id := storage.HashName(name)
				state := fresh.Render("new")
				if table.AlreadyMaterialized(id) {
					state = known.Render("known")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s  %-5s  %s\n", id, state, name)
			}
			return nil
		},
	}
}

// newPlaylistsCommand lists the playlists saved in the library with their download progress.
func newPlaylistsCommand(fs afero.Fs) *cobra.Command {
	return &cobra.Command{
		Use:     "playlists",
		Aliases: []string{"ls"},
		Short:   "List the playlists in the library",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, fs)
			if err != nil {
				return err
			}
			layout := openLayout(cfg)
			log := newCommandLogger(cmd, cfg)
			playlists, err := storage.NewSnapshotRepository(fs, layout, log.With(slog.String("component", "snapshots"))).LoadAll()
			if err != nil {
				return err
			}

			r := lipgloss.NewRenderer(cmd.OutOrStdout())
			title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
			dim := r.NewStyle().Foreground(lipgloss.Color("240"))
			done := r.NewStyle().Foreground(lipgloss.Color("42"))

			if len(playlists) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dim.Render(fmt.Sprintf("no playlists in %s", layout.Root)))
				return nil
			}

			presence := storage.NewPresence(fs, layout)
			for _, p := range playlists {
				have := lo.Count(lo.Values(presence.DownloadedMapFor(p)), true)
				progress := fmt.Sprintf("%d/%d", have, p.Length)
				if p.Downloaded && have == p.Length {
					progress = done.Render(progress)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", title.Render(p.Name), progress, dim.Render(p.SourceURL))
			}
			return nil
		},
	}
}
