package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rnmt/internal/inference"
	"github.com/samcharles93/rnmt/internal/logger"
)

var (
	modelPath  string
	modelsPath string
	maxTokens  int64
	maxBatch   int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to a model directory",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory containing model directories",
			Destination: &modelsPath,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Usage:       "max padded source tokens per batch (0 = unlimited)",
			Value:       4096,
			Destination: &maxTokens,
		},
		&cli.Int64Flag{
			Name:        "max-batch",
			Usage:       "max sentences per batch (0 = unlimited)",
			Value:       32,
			Destination: &maxBatch,
		},
	}
}

func modelLoader() inference.Loader {
	return inference.Loader{MaxTokens: int(maxTokens), MaxBatch: int(maxBatch)}
}

// decodeFlags holds the per-request decoding overrides of translate.
type decodeFlags struct {
	beamSize      int64
	lengthPenalty float64
	maxLength     int64
	returnAll     bool
	clipBeam      bool
	noFillPad     bool
	sample        bool
	seed          int64
	temperature   float64
	topK          int64
	topP          float64
}

func (f *decodeFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "beam-size", Aliases: []string{"k"}, Usage: "beam width (1 = greedy)", Destination: &f.beamSize},
		&cli.Float64Flag{Name: "length-penalty", Aliases: []string{"lp"}, Usage: "length penalty exponent (0 = off)", Destination: &f.lengthPenalty},
		&cli.Int64Flag{Name: "max-length", Usage: "max decoded tokens", Destination: &f.maxLength},
		&cli.BoolFlag{Name: "return-all", Usage: "print every beam hypothesis", Destination: &f.returnAll},
		&cli.BoolFlag{Name: "clip-beam", Usage: "rank beam candidates by length-normalised score", Destination: &f.clipBeam},
		&cli.BoolFlag{Name: "no-fill-pad", Usage: "keep decoding tokens after eos instead of padding", Destination: &f.noFillPad},
		&cli.BoolFlag{Name: "sample", Usage: "sample instead of arg-max (greedy only)", Destination: &f.sample},
		&cli.Int64Flag{Name: "seed", Usage: "sampling seed (-1 = random)", Value: -1, Destination: &f.seed},
		&cli.Float64Flag{Name: "temperature", Aliases: []string{"temp"}, Usage: "sampling temperature", Value: 1, Destination: &f.temperature},
		&cli.Int64Flag{Name: "top-k", Usage: "sampling top-k (0 = off)", Destination: &f.topK},
		&cli.Float64Flag{Name: "top-p", Usage: "sampling nucleus mass (0 = off)", Destination: &f.topP},
	}
}

// options returns overrides for the flags the user set, then for the config
// file defaults; everything else falls back to the model defaults.
func (f *decodeFlags) options(cmd *cli.Command, cfg Config) inference.RequestOptions {
	var opts inference.RequestOptions
	switch {
	case cmd.IsSet("beam-size"):
		v := int(f.beamSize)
		opts.BeamSize = &v
	case cfg.BeamSize != nil:
		v := int(*cfg.BeamSize)
		opts.BeamSize = &v
	}
	switch {
	case cmd.IsSet("length-penalty"):
		opts.LengthPenalty = &f.lengthPenalty
	case cfg.LengthPenalty != nil:
		opts.LengthPenalty = cfg.LengthPenalty
	}
	switch {
	case cmd.IsSet("max-length"):
		v := int(f.maxLength)
		opts.MaxLength = &v
	case cfg.MaxLength != nil:
		v := int(*cfg.MaxLength)
		opts.MaxLength = &v
	}
	opts.ReturnAll = &f.returnAll
	opts.ClipBeam = &f.clipBeam
	fill := !f.noFillPad
	opts.FillPad = &fill
	if f.sample {
		if !cmd.IsSet("beam-size") {
			greedy := 1
			opts.BeamSize = &greedy
		}
		topK := int(f.topK)
		opts.Sample = &f.sample
		opts.Seed = &f.seed
		opts.Temperature = &f.temperature
		opts.TopK = &topK
		opts.TopP = &f.topP
	}
	return opts
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging builds the logger from the logging flags and the user config
// and stores it in the command context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	applyLoggingConfig(cmd, LoadConfig())
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.ForFormat(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
