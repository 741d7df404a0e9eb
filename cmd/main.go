package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"readaloud/internal/cli/scheme/colours"
	"readaloud/internal/config"
	"readaloud/internal/reader/nest"
)

type command func(*nest.ReadAloud, *cobra.Command, []string) error

func main() {
	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		configFile string
		app        *nest.ReadAloud
	)

	run := func(f command) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return f(app, cmd, args)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "readaloud",
		Short: "📖 Listen to your books, one sentence at a time",
		Long: `
┌─────────────────────────────────────┐
│  📖 Welcome to ReadAloud! 🎧        │
│  Text-to-speech for long reads      │
└─────────────────────────────────────┘

ReadAloud splits chapters into short sentences, speaks them with the best
speech engine on your machine and remembers where you stopped.
		`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()
			app = nest.New(ctx, cfg)
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default $HOME/.readaloud/readaloud.yaml)")

	listCmd := &cobra.Command{
		Use:   "list [book-id]",
		Short: "📋 List books, or the chapters of a book",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run((*nest.ReadAloud).ListBooks),
	}
	listCmd.Flags().StringP("search", "s", "", "Only show titles or IDs containing this text")

	readCmd := &cobra.Command{
		Use:   "read [book-id] [chapter-id]",
		Short: "🎧 Listen to a chapter",
		Long:  "Read a chapter aloud. Missing book or chapter IDs are chosen interactively.",
		Args:  cobra.MaximumNArgs(2),
		RunE:  run((*nest.ReadAloud).Read),
	}
	readCmd.Flags().Int("from", 0, "Start at this segment index")
	readCmd.Flags().Int("offset", 0, "Start at the segment containing this character offset")
	readCmd.Flags().Bool("continue", true, "Continue with the next chapter when one ends")
	nest.AddVoiceFlags(readCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume [book-id]",
		Short: "⏯️ Continue where you stopped",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run((*nest.ReadAloud).Resume),
	}
	resumeCmd.Flags().Bool("continue", true, "Continue with the next chapter when one ends")
	nest.AddVoiceFlags(resumeCmd)

	segmentCmd := &cobra.Command{
		Use:   "segment [file]",
		Short: "✂️ Show how a text is split for speech",
		Long:  "Split a text file (or stdin) into speakable segments and print them with their offsets.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run((*nest.ReadAloud).Segment),
	}
	segmentCmd.Flags().Int("max", 0, "Longest segment in characters (default 220)")
	segmentCmd.Flags().Int("min", 0, "Shortest chunk when splitting long sentences (default 80)")
	segmentCmd.Flags().Bool("json", false, "Print segments as JSON")

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 List the voices of the speech engine",
		Args:  cobra.NoArgs,
		RunE:  run((*nest.ReadAloud).Voices),
	}
	voicesCmd.Flags().Int("limit", 20, "Show at most this many voices (0 for all)")
	voicesCmd.Flags().StringP("lang", "l", "", "Rank voices for this language")

	progressCmd := &cobra.Command{
		Use:   "progress [book-id]",
		Short: "📊 Show saved reading progress",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run((*nest.ReadAloud).Progress),
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show or change voice settings",
		Long:  "Show the voice settings. Any flag given is saved as a preference.",
		Args:  cobra.NoArgs,
		RunE:  run((*nest.ReadAloud).Settings),
	}
	nest.AddVoiceFlags(settingsCmd)

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "🗄️ Manage library and audio caches",
	}
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "📊 Show cache status",
			RunE:  run((*nest.ReadAloud).ShowCacheStatus),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "🧹 Remove cached library and audio",
			RunE:  run((*nest.ReadAloud).ClearCache),
		},
	)

	rootCmd.AddCommand(listCmd, readCmd, resumeCmd, segmentCmd, voicesCmd, progressCmd, settingsCmd, cacheCmd)

	err := execute(ctx, rootCmd, func() error {
		if app == nil {
			return nil
		}
		return app.Close()
	})
	if ctx.Err() != nil {
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Happy listening! 🎧"))
	}
	if err != nil {
		colours.Error.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs root and then closes whatever the command opened, also when
// the command failed.
func execute(ctx context.Context, root *cobra.Command, closeApp func() error) error {
	err := root.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil {
		logrus.WithError(cerr).Warn("Failed to close resources")
	}
	return err
}
