package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rnmt/internal/inference"
	"github.com/samcharles93/rnmt/internal/logger"
)

func translateCmd() *cli.Command {
	var (
		inputPath  string
		outputPath string
		chunk      int64
		scores     bool
		noProgress bool
		dec        decodeFlags
	)

	flags := append(commonModelFlags(),
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "source file, one sentence per line (default stdin)", Destination: &inputPath},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default stdout)", Destination: &outputPath},
		&cli.Int64Flag{Name: "chunk", Usage: "sentences handed to the engine per call", Value: 256, Destination: &chunk},
		&cli.BoolFlag{Name: "scores", Usage: "prefix every line with its score", Destination: &scores},
		&cli.BoolFlag{Name: "no-progress", Usage: "disable the progress bar", Destination: &noProgress},
	)
	flags = append(flags, dec.flags()...)

	return &cli.Command{
		Name:      "translate",
		Usage:     "Translate sentences from a file or stdin",
		ArgsUsage: "[sentence...]",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)

			dir, err := resolveModelDir(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			res, err := modelLoader().Load(dir)
			if err != nil {
				return err
			}
			defer func() { _ = res.Engine.Close() }()

			lines, err := readSentences(cmd.Args().Slice(), inputPath)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			w := bufio.NewWriter(out)
			defer func() { _ = w.Flush() }()

			var bar *progressbar.ProgressBar
			if !noProgress && len(lines) > 1 && isCharDevice(os.Stderr) {
				bar = newProgressBar(len(lines))
			}

			base := dec.options(cmd, cfg)
			start := time.Now()
			var stats inference.Stats
			for lo := 0; lo < len(lines); lo += int(max(chunk, 1)) {
				hi := min(lo+int(max(chunk, 1)), len(lines))
				opts := base
				opts.Inputs = lines[lo:hi]
				req := inference.ResolveRequest(opts, res.Defaults)
				result, err := res.Engine.Translate(ctx, &req)
				if err != nil {
					return err
				}
				if err := writeTranslations(w, result, scores, dec.returnAll); err != nil {
					return err
				}
				accumulate(&stats, result.Stats)
				if bar != nil {
					_ = bar.Add(hi - lo)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}
			log.Info("translation finished",
				"model", res.Name,
				"sentences", stats.Sentences,
				"tokens", stats.TokensGenerated,
				"steps", stats.Steps,
				"duration", time.Since(start),
			)
			return nil
		},
	}
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("translating"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sent"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
}

// readSentences returns args when given, else the lines of path (or stdin).
func readSentences(args []string, path string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return readLines(r)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

func writeTranslations(w io.Writer, res *inference.Result, scores, all bool) error {
	for _, tr := range res.Translations {
		if err := writeLine(w, tr.Text, tr.Score, scores); err != nil {
			return err
		}
		if !all {
			continue
		}
		for _, alt := range tr.Alternatives {
			if err := writeLine(w, "\t"+alt.Text, alt.Score, scores); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLine(w io.Writer, text string, score float32, withScore bool) error {
	var err error
	if withScore {
		_, err = fmt.Fprintf(w, "%.4f\t%s\n", score, text)
	} else {
		_, err = fmt.Fprintln(w, text)
	}
	return err
}

func accumulate(dst *inference.Stats, s inference.Stats) {
	dst.Sentences += s.Sentences
	dst.SourceTokens += s.SourceTokens
	dst.TokensGenerated += s.TokensGenerated
	dst.Steps += s.Steps
	dst.Batches += s.Batches
	dst.Duration += s.Duration
}
