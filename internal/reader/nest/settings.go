package nest

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"readaloud/internal/cli/scheme/colours"
	"readaloud/internal/progress"
	"readaloud/internal/reader/player"
)

// AddVoiceFlags registers the flags that override saved preferences.
func AddVoiceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("voice", "v", "", "Voice to use for reading. See 'voices' for options")
	cmd.Flags().Float64P("rate", "r", 0, "Speaking rate, 1.0 is normal")
	cmd.Flags().Float64("volume", 0, "Volume from 0 to 1")
	cmd.Flags().Float64("pitch", 0, "Pitch from 0 to 2, 1.0 is neutral")
	cmd.Flags().StringP("lang", "l", "", "Language hint such as zh-TW")
	cmd.Flags().Int("sleep", 0, "Stop playback after this many minutes (0 disables)")
}

// preferences merges configured defaults, saved preferences and cmd's flags.
func (ra *ReadAloud) preferences(cmd *cobra.Command) (progress.Preferences, error) {
	prefs := progress.Preferences{
		Rate:         ra.cfg.TTS.Speed,
		Volume:       ra.cfg.TTS.Volume,
		Pitch:        ra.cfg.TTS.Pitch,
		Language:     ra.cfg.TTS.Language,
		SleepMinutes: ra.cfg.TTS.SleepMinutes,
	}

	store, err := ra.Store()
	if err != nil {
		return prefs, err
	}
	saved, err := store.LoadPreferences(ra.ctx)
	switch {
	case err == nil:
		prefs = mergePreferences(prefs, *saved)
	case !errors.Is(err, progress.ErrNotFound):
		ra.log.WithError(err).Warn("Failed to load preferences")
	}

	if cmd != nil {
		applyFlags(cmd, &prefs)
	}
	return prefs, nil
}

// mergePreferences overrides base with the set fields of saved.
func mergePreferences(base, saved progress.Preferences) progress.Preferences {
	if saved.VoiceID != "" {
		base.VoiceID = saved.VoiceID
	}
	if saved.Rate > 0 {
		base.Rate = saved.Rate
	}
	if saved.Volume > 0 {
		base.Volume = saved.Volume
	}
	if saved.Pitch > 0 {
		base.Pitch = saved.Pitch
	}
	if saved.Language != "" {
		base.Language = saved.Language
	}
	if saved.SleepMinutes > 0 {
		base.SleepMinutes = saved.SleepMinutes
	}
	return base
}

func applyFlags(cmd *cobra.Command, prefs *progress.Preferences) {
	flags := cmd.Flags()
	if flags.Changed("voice") {
		prefs.VoiceID, _ = flags.GetString("voice")
	}
	if flags.Changed("rate") {
		prefs.Rate, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("volume") {
		prefs.Volume, _ = flags.GetFloat64("volume")
	}
	if flags.Changed("pitch") {
		prefs.Pitch, _ = flags.GetFloat64("pitch")
	}
	if flags.Changed("lang") {
		prefs.Language, _ = flags.GetString("lang")
	}
	if flags.Changed("sleep") {
		prefs.SleepMinutes, _ = flags.GetInt("sleep")
	}
}

func validatePreferences(p progress.Preferences) error {
	if p.Rate <= 0 || p.Rate > 10 {
		return fmt.Errorf("rate must be in (0, 10]: %v", p.Rate)
	}
	if p.Volume < 0 || p.Volume > 1 {
		return fmt.Errorf("volume must be in [0, 1]: %v", p.Volume)
	}
	if p.Pitch < 0 || p.Pitch > 2 {
		return fmt.Errorf("pitch must be in [0, 2]: %v", p.Pitch)
	}
	if p.SleepMinutes < 0 {
		return fmt.Errorf("sleep must not be negative: %d", p.SleepMinutes)
	}
	return nil
}

func voiceOf(p progress.Preferences) player.Voice {
	return player.Voice{
		ID:       p.VoiceID,
		Rate:     p.Rate,
		Volume:   p.Volume,
		Pitch:    p.Pitch,
		Language: p.Language,
	}
}

// Settings shows the voice settings and saves any given with flags.
func (ra *ReadAloud) Settings(cmd *cobra.Command, args []string) error {
	prefs, err := ra.preferences(cmd)
	if err != nil {
		return err
	}

	changed := false
	for _, name := range []string{"voice", "rate", "volume", "pitch", "lang", "sleep"} {
		if cmd.Flags().Changed(name) {
			changed = true
		}
	}

	if changed {
		if err := validatePreferences(prefs); err != nil {
			return err
		}
		store, err := ra.Store()
		if err != nil {
			return err
		}
		if err := store.SavePreferences(ra.ctx, prefs); err != nil {
			return fmt.Errorf("failed to save preferences: %w", err)
		}
	}

	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "⚙️ TTS Settings ⚙️")
	fmt.Fprintln(ra.out)

	voice := prefs.VoiceID
	if voice == "" {
		voice = ra.cfg.TTS.Voice
	}
	language := prefs.Language
	if language == "" {
		language = "auto"
	}
	sleep := "off"
	if prefs.SleepMinutes > 0 {
		sleep = fmt.Sprintf("%d minutes", prefs.SleepMinutes)
	}

	colours.Prompt.Fprintln(ra.out, "🎤 Voice Settings:")
	fmt.Fprintf(ra.out, "  • Engine: %s\n", ra.cfg.TTS.Type)
	fmt.Fprintf(ra.out, "  • Voice: %s\n", voice)
	fmt.Fprintf(ra.out, "  • Speed: %.2fx\n", prefs.Rate)
	fmt.Fprintf(ra.out, "  • Volume: %.0f%%\n", prefs.Volume*100)
	fmt.Fprintf(ra.out, "  • Pitch: %.2f\n", prefs.Pitch)
	fmt.Fprintf(ra.out, "  • Language: %s\n", language)
	fmt.Fprintf(ra.out, "  • Sleep timer: %s\n", sleep)
	fmt.Fprintln(ra.out)

	if changed {
		colours.Success.Fprintln(ra.out, "✅ Settings saved")
	} else {
		colours.Info.Fprintln(ra.out, "💡 Change a setting with e.g. 'readaloud settings --rate 1.2 --voice <id>'")
	}
	return nil
}
