// Package main provides the voxbook CLI, a chapter narrator with
// per-character voices and emotion-aware prosody.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxbook/voxbook/internal/cache"
	"github.com/voxbook/voxbook/narrate"
	"github.com/voxbook/voxbook/narrate/audio"
	"github.com/voxbook/voxbook/narrate/engines"
	"github.com/voxbook/voxbook/narrate/lookahead"
	"github.com/voxbook/voxbook/narrate/pipeline"
	"github.com/voxbook/voxbook/narrate/playqueue"
	"github.com/voxbook/voxbook/narrate/segmenter"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	engineFlag string
	speedFlag  float64
	pageFlag   int
	headless   bool
	noEmotion  bool
	noResume   bool
	debugFlag  bool

	rootCmd = &cobra.Command{
		Use:          "voxbook [FILE]",
		Short:        "Read a book aloud with character voices",
		Long:         "\nVoxbook narrates a text or markdown file with per-character voices,\nemotion-aware prosody, and resumable playback position.",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configFile == "" {
				return nil
			}
			viper.SetConfigFile(configFile)
			return viper.ReadInConfig()
		},
		RunE: run,
	}
)

func run(cmd *cobra.Command, args []string) error {
	if debugFlag {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source := narrate.NewFileSource(args[0])
	pages, err := source.Pages(ctx)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("%s contains no readable text", args[0])
	}

	engine, err := engines.New(cfg)
	if err != nil {
		return err
	}
	handle := engines.NewHandle(engine, cfg.SwapTimeout)
	defer func() { _ = handle.Shutdown() }()

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Stop() }()

	var store *cache.Manager
	if cfg.Cache.Enabled {
		store, err = openCache(cfg)
		if err != nil {
			log.Warn("cache disabled", "err", err)
		} else {
			defer func() { _ = store.Close() }()
		}
	}

	synth := engines.WithCache(handle, store, cfg.SampleRate)

	workID := filepath.Base(args[0])
	log.Info("starting narration",
		"file", args[0], "pages", len(pages), "engine", handle.Name())

	if len(pages) == 1 {
		return narrateSinglePage(ctx, cfg, synth, sink, source, pages[0])
	}
	return narrateChapters(ctx, cmd, cfg, synth, sink, source, pages, workID)
}

// narrateSinglePage streams one page through the three-stage pipeline.
func narrateSinglePage(ctx context.Context, cfg narrate.Config, synth narrate.Synthesizer, sink narrate.AudioSink, source narrate.ChapterSource, page string) error {
	dialogs, err := source.Dialogs(ctx, 0)
	if err != nil {
		return err
	}
	segs := segmenter.Segment(page, dialogs)

	p := pipeline.New(cfg, synth, sink, narrate.DefaultVoiceProfile())
	if speedFlag > 0 {
		_ = p.Speed().SetSpeed(speedFlag)
	}

	go logEvents(p.Events())
	return p.Run(ctx, segs)
}

// narrateChapters plays a multi-page work with lookahead pre-synthesis
// and checkpointed position.
func narrateChapters(ctx context.Context, cmd *cobra.Command, cfg narrate.Config, synth narrate.Synthesizer, sink narrate.AudioSink, source narrate.ChapterSource, pages []string, workID string) error {
	var cpStore playqueue.CheckpointStore
	if fs, err := playqueue.NewFileStore(checkpointDir()); err != nil {
		log.Warn("checkpoints disabled", "err", err)
	} else {
		cpStore = fs
	}

	q := playqueue.NewEngine(cfg, synth, sink, cpStore, workID)
	if speedFlag > 0 {
		_ = q.Speed().SetSpeed(speedFlag)
	}

	segmentsFor := func(page int) ([]narrate.SpeechSegment, error) {
		dialogs, err := source.Dialogs(ctx, page)
		if err != nil {
			return nil, err
		}
		return segmenter.Segment(pages[page], dialogs), nil
	}

	events := narrate.NewBroadcaster()
	go logEvents(events.Subscribe())
	defer events.Close()

	la := lookahead.NewManager(cfg, func(ctx context.Context, page int) ([]*narrate.AudioBuffer, error) {
		if page >= len(pages) {
			return nil, fmt.Errorf("page %d past end of work", page)
		}
		segs, err := segmentsFor(page)
		if err != nil {
			return nil, err
		}
		return q.PreSynthesize(ctx, segs, 2), nil
	}, events)
	defer la.Close()
	la.OnEvict = func(page int) {
		log.Debug("page left lookahead window", "page", page)
	}

	startPage := 0
	startSegment := -1
	if pageFlag > 0 {
		startPage = pageFlag - 1
	} else if !noResume {
		if cp, err := q.LoadCheckpoint(ctx); err == nil {
			startPage = cp.Page
			startSegment = cp.Segment
			if cp.Speed > 0 && !cmd.Flags().Changed("speed") {
				_ = q.Speed().SetSpeed(cp.Speed)
			}
			log.Info("resuming from checkpoint", "page", cp.Page, "segment", cp.Segment)
		}
	}
	if startPage >= len(pages) {
		startPage = len(pages) - 1
	}

	for page := startPage; page < len(pages); page++ {
		select {
		case <-ctx.Done():
			q.Stop(context.Background())
			return nil
		default:
		}

		segs, err := segmentsFor(page)
		if err != nil {
			return err
		}
		if len(segs) == 0 {
			continue
		}

		la.OnPlaybackStarted(page, len(pages))
		ready, _ := la.GetFromBuffer(page)

		if page == startPage && startSegment >= 0 {
			q.Seek(startSegment)
			startSegment = -1
		}

		log.Info("narrating page", "page", page+1, "of", len(pages), "segments", len(segs), "prebuffered", len(ready))

		// Report playback position while the page plays so the halfway
		// lookahead trigger fires mid-page, not after it.
		watchCtx, stopWatch := context.WithCancel(ctx)
		go la.WatchProgress(watchCtx, page, sink.Elapsed(), pageDuration(cfg, segs), sink.Elapsed, 200*time.Millisecond)

		err = q.Play(ctx, page, segs, ready)
		stopWatch()
		if err != nil && ctx.Err() == nil {
			return err
		}
		la.OnPlaybackProgress(page, 1.0)
	}

	q.Stop(context.Background())
	log.Info("narration complete", "pages", len(pages))
	return nil
}

// pageDuration estimates how long a page takes to narrate at the
// configured reading speeds.
func pageDuration(cfg narrate.Config, segs []narrate.SpeechSegment) time.Duration {
	var total time.Duration
	for _, seg := range segs {
		wpm := cfg.NarrationWPM
		if seg.IsDialog {
			wpm = cfg.DialogWPM
		}
		total += narrate.EstimateDuration(seg.Text, wpm)
	}
	return total
}

// openSink picks the audio device, falling back to a silent sink for
// headless runs.
func openSink(cfg narrate.Config) (narrate.AudioSink, error) {
	if headless {
		sink := audio.NewMockSink()
		sink.Instant = false
		sink.SampleRate = cfg.SampleRate
		return sink, nil
	}
	sink, err := audio.NewOtoSink(cfg.SampleRate, 1, cfg.Volume)
	if err != nil {
		return nil, fmt.Errorf("open audio device (use --headless to run without): %w", err)
	}
	return sink, nil
}

func openCache(cfg narrate.Config) (*cache.Manager, error) {
	path := cfg.Cache.DiskPath
	if path == "" {
		path = filepath.Join(dataDir(), "cache")
	}
	return cache.NewManager(cache.Options{
		MemoryCapacity: cfg.Cache.MemoryCapacity,
		DiskCapacity:   cfg.Cache.DiskCapacity,
		DiskPath:       path,
		Compression:    cfg.Cache.Compression,
		TTL:            cfg.Cache.TTL(),
	})
}

// logEvents mirrors playback events onto the log so a terminal user can
// follow along.
func logEvents(ch <-chan narrate.Event) {
	for ev := range ch {
		switch msg := ev.(type) {
		case narrate.ActiveSegmentMsg:
			if msg.Index < 0 {
				continue
			}
			log.Info("speaking", "segment", msg.Index, "speaker", msg.Speaker, "text", msg.Text)
		case narrate.PlaybackStateMsg:
			if msg.Err != nil {
				log.Error("playback", "state", msg.State, "err", msg.Err)
			}
		case narrate.PageBufferClearedMsg:
			log.Debug("page buffer cleared", "page", msg.Page)
		}
	}
}

// loadConfig layers defaults, environment, config file, and flags.
func loadConfig(cmd *cobra.Command) (narrate.Config, error) {
	cfg, err := env.ParseAs[narrate.Config]()
	if err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg, err = narrate.ApplyViper(cfg)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("engine") {
		cfg.Engine = engineFlag
	}
	if cmd.Flags().Changed("no-emotion") {
		cfg.DisableEmotion = noEmotion
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func dataDir() string {
	if dir := os.Getenv("VOXBOOK_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voxbook"
	}
	return filepath.Join(home, ".voxbook")
}

func checkpointDir() string {
	return filepath.Join(dataDir(), "checkpoints")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&engineFlag, "engine", "e", "mock", "speech engine (mock/piper)")
	rootCmd.Flags().Float64VarP(&speedFlag, "speed", "s", 0, "playback speed (0.5 to 2.0)")
	rootCmd.Flags().IntVarP(&pageFlag, "page", "p", -1, "start at page (1-based, overrides checkpoint)")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without an audio device")
	rootCmd.Flags().BoolVar(&noEmotion, "no-emotion", false, "read everything in the base voice")
	rootCmd.Flags().BoolVar(&noResume, "no-resume", false, "ignore any saved position")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "verbose logging")

	_ = viper.BindPFlag("narrate.engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("narrate.disable_emotion", rootCmd.Flags().Lookup("no-emotion"))

	rootCmd.AddCommand(configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	var dirs []string
	if c := os.Getenv("VOXBOOK_CONFIG_HOME"); c != "" {
		dirs = append(dirs, c)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append(dirs, filepath.Join(c, "voxbook"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "voxbook"))
	}
	for _, dir := range dirs {
		viper.AddConfigPath(dir)
	}

	viper.SetConfigName("voxbook")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("voxbook")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("could not parse configuration file", "err", err)
		}
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("using configuration file", "path", used)
	}
}
