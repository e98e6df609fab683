package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/linuxmatters/sonogram/internal/classify"
	"github.com/linuxmatters/sonogram/internal/cli"
	"github.com/linuxmatters/sonogram/internal/config"
	"github.com/linuxmatters/sonogram/internal/observe"
	"github.com/linuxmatters/sonogram/internal/pipeline"
	"github.com/linuxmatters/sonogram/internal/server"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

var CLI struct {
	Render   RenderCmd   `cmd:"" help:"Render an audio file to a spectrogram PNG."`
	Serve    ServeCmd    `cmd:"" help:"Run the HTTP service."`
	Classify ClassifyCmd `cmd:"" help:"Label an audio file as fake or real."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sonogram"),
		kong.Description(cli.Tagline),
		kong.Vars{"version": version},
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if err := ctx.Run(); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	cli.PrintVersion(version)
	return nil
}

// ServeCmd runs the HTTP service until SIGINT or SIGTERM.
type ServeCmd struct {
	Config  string   `help:"YAML config file." type:"path"`
	Addr    string   `help:"Listen address, overrides the config."`
	EnvFile []string `name:"env-file" help:"Dotenv files loaded before the config." default:".env"`
}

func (c *ServeCmd) Run() error {
	if err := config.LoadDotEnv(c.EnvFile...); err != nil {
		return err
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sonogram",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	p, err := pipeline.New(pipeline.OptionsFromConfig(cfg.Spectrogram),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	classifier, err := classify.New(cfg.Classifier)
	if err != nil {
		return err
	}

	cli.PrintBanner()
	cli.PrintInfo("Version", version)
	cli.PrintInfo("Listen", cfg.Server.Addr)
	cli.PrintInfo("Canvas", fmt.Sprintf("%dx%d", cfg.Spectrogram.Width, cfg.Spectrogram.Height))
	cli.PrintInfo("Transform", fmt.Sprintf("%s (frame %d, hop %d)", cfg.Spectrogram.Transform, cfg.Spectrogram.FrameSize, cfg.Spectrogram.HopSize))
	cli.PrintInfo("Classifier", cfg.Classifier.Mode)
	fmt.Println()

	srv := server.New(cfg.Server, p, classifier,
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	cli.PrintSuccess("server stopped")
	return nil
}

// ClassifyCmd labels one file with the simulated or a remote classifier.
type ClassifyCmd struct {
	Input   string        `arg:"" name:"input" help:"Audio file (.wav .mp3 .flac .ogg .m4a .aac)." type:"existingfile"`
	Remote  string        `help:"Inference service base URL. Uses the offline simulator when empty." placeholder:"URL"`
	Timeout time.Duration `help:"Remote request timeout." default:"30s"`
}

func (c *ClassifyCmd) Run() error {
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}

	var classifier classify.Classifier = classify.NewSimulated()
	if c.Remote != "" {
		classifier, err = classify.NewRemote(c.Remote, classify.WithTimeout(c.Timeout))
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := classifier.Classify(ctx, filepath.Base(c.Input), data)
	if err != nil {
		return err
	}

	size := res.FileSize
	if size == "" {
		size = classify.FormatSize(len(data))
	}
	cli.PrintVerdict(cli.Verdict{
		FileName:   res.FileName,
		IsFake:     res.IsFake,
		Confidence: res.Confidence,
		Fake:       res.Probabilities.Fake,
		Real:       res.Probabilities.Real,
		Features:   res.Features,
		Duration:   res.Duration,
		SampleRate: res.SampleRate,
		FileSize:   size,
		Elapsed:    time.Since(start),
	})
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
