package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rnmt/internal/halting"
	"github.com/samcharles93/rnmt/internal/inference"
	"github.com/samcharles93/rnmt/internal/nmt"
	"github.com/samcharles93/rnmt/internal/safetensors"
	"github.com/samcharles93/rnmt/internal/vocab"
)

func inspectCmd() *cli.Command {
	var (
		showTensors  bool
		tensorLimit  int64
		tensorFilter string
		probe        string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a model directory",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{Name: "tensors", Usage: "list stored tensors", Destination: &showTensors},
			&cli.Int64Flag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
			&cli.StringFlag{Name: "halting", Usage: "encode a sentence and print the halting layer of every token", Destination: &probe},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, LoadConfig())
			dir, err := resolveModelDir(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			res, err := modelLoader().Load(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = res.Engine.Close() }()

			w := cmd.Root().Writer
			printModel(w, dir, res)

			weights := filepath.Join(dir, inference.WeightsFile)
			st, err := safetensors.Open(weights)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open weights: %v", err), 1)
			}
			defer func() { _ = st.Close() }()
			printWeights(w, st)
			if showTensors {
				printTensors(w, st, tensorFilter, int(tensorLimit))
			}
			if probe != "" {
				return printHalting(w, res.Model, res.Source, probe)
			}
			return nil
		},
	}
}

func printModel(w io.Writer, dir string, res *inference.LoadResult) {
	cfg := res.Model.Config
	_, _ = fmt.Fprintf(w, "Model: %s (%s)\n", res.Name, dir)
	_, _ = fmt.Fprintln(w, "\nArchitecture")
	_, _ = fmt.Fprintf(w, "  isize:          %d\n", cfg.ISize)
	_, _ = fmt.Fprintf(w, "  ff_hsize:       %d\n", cfg.FFHSize)
	_, _ = fmt.Fprintf(w, "  heads:          %d (attention width %d)\n", cfg.NHead, cfg.AttnSize())
	_, _ = fmt.Fprintf(w, "  encoder:        up to %d shared-layer steps, halt epsilon %g\n", cfg.EncLayers, cfg.HaltEpsilon)
	_, _ = fmt.Fprintf(w, "  decoder:        %d recurrent layers\n", cfg.DecLayers)
	_, _ = fmt.Fprintf(w, "  projector:      %t, output norm %t\n", cfg.Projector, cfg.NormOutput)
	_, _ = fmt.Fprintf(w, "  max_seq_len:    %d\n", cfg.MaxSeqLen)
	_, _ = fmt.Fprintf(w, "  forbidden ids:  %v\n", cfg.Forbidden)
	_, _ = fmt.Fprintf(w, "  parameters:     %s\n", humanize.Comma(int64(res.Model.ParamCount())))

	_, _ = fmt.Fprintln(w, "\nVocabularies")
	_, _ = fmt.Fprintf(w, "  source:         %s entries (model %s)\n", humanize.Comma(int64(res.Source.Size())), humanize.Comma(int64(cfg.SrcVocabSize)))
	_, _ = fmt.Fprintf(w, "  target:         %s entries (model %s)\n", humanize.Comma(int64(res.Target.Size())), humanize.Comma(int64(cfg.TgtVocabSize)))

	d := res.Defaults
	_, _ = fmt.Fprintln(w, "\nDecoding defaults")
	_, _ = fmt.Fprintf(w, "  beam_size:      %d\n", d.BeamSize)
	_, _ = fmt.Fprintf(w, "  length_penalty: %g\n", d.LengthPenalty)
	_, _ = fmt.Fprintf(w, "  max_length:     %d\n", d.MaxLength)
}

func printWeights(w io.Writer, st *safetensors.File) {
	var elems int64
	byType := map[string]int{}
	for _, name := range st.Names() {
		info, _ := st.Tensor(name)
		n := int64(1)
		for _, d := range info.Shape {
			n *= int64(d)
		}
		elems += n
		byType[info.DType]++
	}
	_, _ = fmt.Fprintln(w, "\nWeights")
	_, _ = fmt.Fprintf(w, "  file:           %s (%s)\n", filepath.Base(st.Path), humanize.Bytes(uint64(st.Size())))
	_, _ = fmt.Fprintf(w, "  tensors:        %d (%s values)\n", len(st.Names()), humanize.Comma(elems))
	for dtype, n := range byType {
		_, _ = fmt.Fprintf(w, "  %-15s %d\n", dtype+":", n)
	}
	for k, v := range st.Metadata {
		_, _ = fmt.Fprintf(w, "  meta %s: %s\n", k, v)
	}
}

func printTensors(w io.Writer, st *safetensors.File, filter string, limit int) {
	_, _ = fmt.Fprintln(w, "\nTensors")
	shown := 0
	for _, name := range st.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		if limit > 0 && shown >= limit {
			_, _ = fmt.Fprintf(w, "  ... (use --tensors-limit 0 to list all)\n")
			return
		}
		info, _ := st.Tensor(name)
		_, _ = fmt.Fprintf(w, "  %-40s %-5s %v %s\n", name, info.DType, info.Shape, humanize.Bytes(uint64(info.End-info.Start)))
		shown++
	}
}

func printHalting(w io.Writer, m *nmt.Model, src *vocab.Vocab, sentence string) error {
	ids := src.Encode(sentence)
	if len(ids) == 0 {
		return fmt.Errorf("halting probe: empty sentence")
	}
	if len(ids) > m.Config.MaxSeqLen {
		ids = ids[:m.Config.MaxSeqLen]
	}
	enc, _, err := m.Encode(vocab.Pad([][]int{ids}), halting.Inference)
	if err != nil {
		return err
	}
	words := strings.Fields(sentence)
	_, _ = fmt.Fprintf(w, "\nHalting (%d of %d layers applied)\n", enc.Trace.Layers(), m.Config.EncLayers)
	for i, id := range ids {
		word := src.Word(id)
		if i < len(words) && word != words[i] {
			word = words[i] + " -> " + word
		}
		_, _ = fmt.Fprintf(w, "  %-20s layer %d  remainder %.3f\n", word, enc.Trace.Last[i]+1, enc.Trace.Remainder[i])
	}
	return nil
}
