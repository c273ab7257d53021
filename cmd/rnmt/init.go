package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rnmt/internal/inference"
	"github.com/samcharles93/rnmt/internal/logger"
	"github.com/samcharles93/rnmt/internal/nmt"
	"github.com/samcharles93/rnmt/internal/vocab"
)

func initCmd() *cli.Command {
	var (
		outDir     string
		srcVocab   string
		tgtVocab   string
		baseConfig string
		seed       int64
		minFreq    int64
		vsize      int64
		isize      int64
		ffSize     int64
		heads      int64
		encLayers  int64
		decLayers  int64
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Write a randomly initialised model directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output model directory", Required: true, Destination: &outDir},
			&cli.StringFlag{Name: "src-vocab", Usage: "source vocabulary file", Required: true, Destination: &srcVocab},
			&cli.StringFlag{Name: "tgt-vocab", Usage: "target vocabulary file", Required: true, Destination: &tgtVocab},
			&cli.StringFlag{Name: "config", Usage: "base model.yaml to start from", Destination: &baseConfig},
			&cli.Int64Flag{Name: "seed", Usage: "weight initialisation seed", Value: 1, Destination: &seed},
			&cli.Int64Flag{Name: "min-freq", Usage: "drop vocabulary entries below this frequency", Destination: &minFreq},
			&cli.Int64Flag{Name: "vsize", Usage: "cap vocabulary size including specials", Destination: &vsize},
			&cli.Int64Flag{Name: "isize", Usage: "model width", Destination: &isize},
			&cli.Int64Flag{Name: "ff-hsize", Usage: "feed-forward hidden width", Destination: &ffSize},
			&cli.Int64Flag{Name: "nhead", Usage: "attention heads", Destination: &heads},
			&cli.Int64Flag{Name: "enc-layers", Usage: "max encoder depth", Destination: &encLayers},
			&cli.Int64Flag{Name: "dec-layers", Usage: "decoder recurrent layers", Destination: &decLayers},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := nmt.DefaultConfig()
			if baseConfig != "" {
				loaded, err := nmt.ReadConfig(baseConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			overrides := []struct {
				flag string
				dst  *int
				val  int64
			}{
				{"isize", &cfg.ISize, isize},
				{"ff-hsize", &cfg.FFHSize, ffSize},
				{"nhead", &cfg.NHead, heads},
				{"enc-layers", &cfg.EncLayers, encLayers},
				{"dec-layers", &cfg.DecLayers, decLayers},
			}
			for _, o := range overrides {
				if cmd.IsSet(o.flag) {
					*o.dst = int(o.val)
				}
			}

			opts := vocab.LoadOptions{MinFreq: int(minFreq), MaxSize: int(vsize)}
			src, err := vocab.LoadFile(srcVocab, opts)
			if err != nil {
				return fmt.Errorf("source vocabulary: %w", err)
			}
			tgt, err := vocab.LoadFile(tgtVocab, opts)
			if err != nil {
				return fmt.Errorf("target vocabulary: %w", err)
			}

			m, err := inference.Create(outDir, cfg, src, tgt, seed)
			if err != nil {
				return err
			}
			log.Info("model initialised",
				"dir", outDir,
				"params", humanize.Comma(int64(m.ParamCount())),
				"src_vocab", src.Size(),
				"tgt_vocab", tgt.Size(),
			)
			return nil
		},
	}
}
