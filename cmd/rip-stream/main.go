package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	rip_stream "github.com/alanbriolat/rip-stream"
	"github.com/alanbriolat/rip-stream/async"
	"github.com/alanbriolat/rip-stream/internal/boltdb"
	"github.com/alanbriolat/rip-stream/internal/config"
	"github.com/alanbriolat/rip-stream/internal/httpx"
	"github.com/alanbriolat/rip-stream/internal/notify"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logger, err := logConfig.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = rip_stream.WithLogger(ctx, logger)

	app := &cli.App{
		Name:      "rip-stream",
		Usage:     "download a numbered sequence of video segments and transcode them into one file",
		ArgsUsage: "VIDEO_NAME",
		Flags:     flags(),
		Action: func(c *cli.Context) error {
			return run(ctx, c, logConfig.Level)
		},
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "list recorded sessions",
				Action: history,
			},
			{
				Name:      "forget",
				Usage:     "remove recorded sessions",
				ArgsUsage: "VIDEO_NAME...",
				Action: forget,
			},
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.RunContext(ctx, os.Args) })

	select {
	case err = <-result:
	case <-ctx.Done():
		// Give the session a chance to record that it was interrupted
		<-result
		err = ctx.Err()
	}
	stop()
	if status := exitStatus(err); status != 0 {
		logger.Error(err.Error())
		_ = logger.Sync()
		os.Exit(status)
	}
}

// exitStatus is 2 for mistakes in the command line or configuration, 130 for an interrupt, and 1 for anything else.
func exitStatus(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case rip_stream.IsUserError(err):
		return 2
	default:
		return 1
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "read defaults from YAML `FILE`", EnvVars: []string{"RIPSTREAM_CONFIG"}},
		&cli.StringFlag{Name: "url_template", Aliases: []string{"u"}, Usage: "segment URL with a `{}` placeholder for the segment number"},
		&cli.IntFlag{Name: "first_number", Aliases: []string{"f"}, Usage: "first segment `NUMBER`"},
		&cli.IntFlag{Name: "last_number", Aliases: []string{"l"}, Value: rip_stream.NoLastIndex, Usage: "last segment `NUMBER` (inclusive), or -1 to stop at the first missing segment"},
		&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Usage: "create the video directory under `DIR`"},
		&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "download up to `N` segments at once"},
		&cli.IntFlag{Name: "retries", Usage: "retry a failed segment download `N` times"},
		&cli.DurationFlag{Name: "retry_delay", Usage: "wait `DURATION` between retries"},
		&cli.DurationFlag{Name: "timeout", Usage: "per-request `DURATION`"},
		&cli.StringSliceFlag{Name: "header", Aliases: []string{"H"}, Usage: "add a request header, as `\"Name: value\"`"},
		&cli.StringFlag{Name: "user_agent", Usage: "User-Agent `STRING` for requests"},
		&cli.StringFlag{Name: "container", Usage: "output container `EXT`, e.g. .mp4 or .mkv"},
		&cli.StringFlag{Name: "codec", Usage: "ffmpeg `CODEC` for all streams"},
		&cli.StringFlag{Name: "format", Usage: "force the ffmpeg output `FORMAT` instead of inferring it from the container"},
		&cli.StringFlag{Name: "ffmpeg", Usage: "path to the ffmpeg `BINARY`"},
		&cli.BoolFlag{Name: "keep_intermediate", Usage: "keep the concatenated segments next to the output"},
		&cli.BoolFlag{Name: "cleanup", Usage: "remove downloaded segments after a successful transcode"},
		&cli.BoolFlag{Name: "no-resume", Usage: "fail instead of reusing segments from an earlier run"},
		&cli.BoolFlag{Name: "notify", Value: true, Usage: "send a notification when finished"},
		&cli.BoolFlag{Name: "no-notify", Usage: "do not send a notification"},
		&cli.IntFlag{Name: "notification_level", Aliases: []string{"n"}, Usage: "notification priority from -2 to 2"},
		&cli.StringFlag{Name: "state_db", Usage: "session history database `FILE`"},
		&cli.StringFlag{Name: "log_level", Usage: "one of debug, info, warn, error"},
	}
}

// loadConfig layers command line flags over the config file and environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("output_dir") {
		cfg.OutputDir = c.String("output_dir")
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	if c.IsSet("retry_delay") {
		cfg.RetryDelay = c.Duration("retry_delay")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("user_agent") {
		cfg.UserAgent = c.String("user_agent")
	}
	if c.IsSet("container") {
		cfg.Container = c.String("container")
	}
	if c.IsSet("codec") {
		cfg.Codec = c.String("codec")
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("ffmpeg") {
		cfg.FFmpeg = c.String("ffmpeg")
	}
	if c.IsSet("keep_intermediate") {
		cfg.KeepIntermediate = c.Bool("keep_intermediate")
	}
	if c.IsSet("cleanup") {
		cfg.Cleanup = c.Bool("cleanup")
	}
	if c.IsSet("no-resume") {
		cfg.Resume = !c.Bool("no-resume")
	}
	if c.IsSet("notify") {
		cfg.Notify.Enabled = c.Bool("notify")
	}
	if c.IsSet("no-notify") {
		cfg.Notify.Enabled = !c.Bool("no-notify")
	}
	if c.IsSet("notification_level") {
		cfg.Notify.Priority = c.Int("notification_level")
		if cfg.Notify.Priority < -2 || cfg.Notify.Priority > 2 {
			return nil, fmt.Errorf("%w: notification_level must be between -2 and 2", rip_stream.ErrConfiguration)
		}
	}
	if c.IsSet("state_db") {
		cfg.StateDB = c.String("state_db")
	}
	if c.IsSet("log_level") {
		cfg.Log.Level = c.String("log_level")
	}
	return cfg, nil
}

func run(ctx context.Context, c *cli.Context, level zap.AtomicLevel) error {
	logger := rip_stream.Logger(ctx).Sugar()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	session := cfg.Session()
	session.LastIndex = c.Int("last_number")
	prompter := newPrompter(os.Stdin, os.Stderr, term.IsTerminal(int(os.Stdin.Fd())))
	if session.OutputName, err = prompter.Value(c.Args().First(), "Video name"); err != nil {
		return err
	}
	if session.URLTemplate, err = prompter.Value(c.String("url_template"), "URL template (use {} where the segment number goes)"); err != nil {
		return err
	}
	session.FirstIndex = c.Int("first_number")
	if !c.IsSet("url_template") && !c.IsSet("first_number") {
		if session.FirstIndex, err = prompter.Int("First segment number", 0); err != nil {
			return err
		}
	}
	if err := session.Validate(); err != nil {
		return err
	}

	transcoder := &rip_stream.FFmpegTranscoder{Path: cfg.FFmpeg, Codec: cfg.Codec, Format: cfg.Format}
	if err := transcoder.CheckFFmpeg(); err != nil {
		return err
	}

	headers, err := httpx.ParseHeaders(c.StringSlice("header"))
	if err != nil {
		return fmt.Errorf("%w: %v", rip_stream.ErrConfiguration, err)
	}
	for name, value := range cfg.Headers {
		if headers.Get(name) == "" {
			headers.Set(name, value)
		}
	}
	client := httpx.NewClient(httpx.Options{Timeout: cfg.Timeout, UserAgent: cfg.UserAgent, Headers: headers})
	fetcher := rip_stream.NewHTTPFetcher(client)

	var store rip_stream.Store = rip_stream.NilStore{}
	if cfg.StateDB != "" {
		db, err := boltdb.New(cfg.StateDB)
		if err != nil {
			logger.Warnf("Session history disabled: %v", err)
		} else {
			defer db.Close()
			store = db
		}
	}

	runner := rip_stream.NewRunner(session, fetcher, transcoder, store)
	var wg sync.WaitGroup

	progressSub, err := runner.Subscribe()
	if err != nil {
		return err
	}
	observer := newProgressObserver(session, logger, os.Stdout)
	fetcher.Progress = observer.AddBytes
	wg.Add(1)
	go func() {
		defer wg.Done()
		observer.Watch(progressSub)
	}()

	if cfg.Notify.Enabled {
		notifier := newNotifier(cfg, logger)
		notifySub, err := runner.Subscribe()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Deliver the final notification even after an interrupt
			notify.Watch(context.WithoutCancel(ctx), notifySub, notifier, cfg.Notify.Priority)
		}()
	}

	result, err := runner.Run(ctx)
	runner.Close()
	wg.Wait()

	if err != nil {
		if errors.Is(err, rip_stream.ErrEmptyInput) {
			return fmt.Errorf("no segments downloaded from %s: %w", session.URLTemplate, err)
		}
		return err
	}
	if result.Skipped {
		logger.Infof("Nothing to do for '%s'", session.OutputName)
	} else {
		logger.Infof("Wrote %s", result.Artifact.Path)
	}
	return nil
}

func newNotifier(cfg *config.Config, logger *zap.SugaredLogger) notify.Notifier {
	path := cfg.Notify.Pushover
	if path == "" {
		path = notify.DefaultPushoverConfigPath()
	}
	creds, err := notify.LoadPushoverCredentials(path)
	if err == nil {
		var notifier *notify.PushoverNotifier
		if notifier, err = notify.NewPushoverNotifier(creds); err == nil {
			return notifier
		}
	}
	logger.Warnf("Pushover notifications disabled (%v), notifying in the log instead", err)
	return notify.LogNotifier{Logger: logger.Desugar()}
}

func openHistory(c *cli.Context) (boltdb.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.StateDB == "" {
		return nil, fmt.Errorf("%w: no state_db configured", rip_stream.ErrConfiguration)
	}
	return boltdb.New(cfg.StateDB)
}

func history(c *cli.Context) error {
	db, err := openHistory(c)
	if err != nil {
		return err
	}
	defer db.Close()
	records, err := db.ListSessions()
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d segments\t%s\t%s\n", r.OutputName, r.Status, r.Segments, r.StartedAt.Format(time.RFC3339), r.URLTemplate)
		if r.Error != "" {
			fmt.Fprintf(w, "\terror: %s\n", r.Error)
		} else if r.ArtifactPath != "" {
			fmt.Fprintf(w, "\t%s\n", r.ArtifactPath)
		}
	}
	return nil
}

func forget(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: forget needs at least one VIDEO_NAME", rip_stream.ErrConfiguration)
	}
	db, err := openHistory(c)
	if err != nil {
		return err
	}
	defer db.Close()
	for _, name := range c.Args().Slice() {
		if err := db.DeleteSession(name); err != nil {
			return err
		}
		rip_stream.Logger(c.Context).Sugar().Infof("Forgot '%s'", name)
	}
	return nil
}
