package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/codesync"
	"pkt.systems/codesync/internal/appconfig"
	"pkt.systems/codesync/internal/persist"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// updatePrefs loads the stored prefs, applies fn and saves the result. A
// participant id is generated on first use.
func updatePrefs(cmd *cobra.Command, flags *rootFlags, fn func(*persist.Prefs) (bool, error)) (persist.Prefs, error) {
	logger := pslog.Ctx(cmd.Context())
	cfg, err := appconfig.Load(flags.configPath)
	if err != nil {
		return persist.Prefs{}, err
	}
	store, err := persist.Open(cfg.Prefs.Backend, cfg.StateDir, logger)
	if err != nil {
		return persist.Prefs{}, err
	}
	defer func() { _ = store.Close() }()
	prefs, _, err := store.Load()
	if err != nil {
		return persist.Prefs{}, err
	}
	changed, err := fn(&prefs)
	if err != nil || !changed {
		return prefs, err
	}
	if prefs.ParticipantID == "" {
		prefs.ParticipantID = codesync.NewParticipantID()
	}
	if err := store.Save(prefs); err != nil {
		return persist.Prefs{}, err
	}
	logger.Info("prefs saved", "backend", cfg.Prefs.Backend, "participant", prefs.ParticipantID)
	return prefs, nil
}

func newNameCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "name [display-name]",
		Short: "Show or set the persisted display name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := updatePrefs(cmd, flags, func(p *persist.Prefs) (bool, error) {
				if len(args) == 0 {
					return false, nil
				}
				name, err := schema.NormalizeDisplayName(args[0])
				if err != nil {
					return false, err
				}
				p.DisplayName = name
				return true, nil
			})
			if err != nil {
				return err
			}
			name := string(prefs.DisplayName)
			if name == "" {
				name = "(not set)"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "name: %s\n", name)
			return err
		},
	}
}

func newThemeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "theme [name]",
		Short: "Show or set the persisted theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := updatePrefs(cmd, flags, func(p *persist.Prefs) (bool, error) {
				if len(args) == 0 {
					return false, nil
				}
				theme, ok := schema.NormalizeThemeName(args[0])
				if !ok {
					return false, fmt.Errorf("%w %q (available: %v)", schema.ErrInvalidTheme, args[0], schema.AvailableThemes())
				}
				p.Theme = theme
				return true, nil
			})
			if err != nil {
				return err
			}
			theme := prefs.Theme
			if theme == "" {
				theme = schema.DefaultTheme
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "theme: %s\n", theme)
			return err
		},
	}
}
