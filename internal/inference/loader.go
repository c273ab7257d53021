package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/rnmt/internal/nmt"
	"github.com/samcharles93/rnmt/internal/vocab"
)

// Files of a model directory.
const (
	ConfigFile      = "model.yaml"
	WeightsFile     = "model.safetensors"
	SourceVocabFile = "src.vocab"
	TargetVocabFile = "tgt.vocab"
)

type Loader struct {
	MaxTokens int
	MaxBatch  int
}

type LoadResult struct {
	Engine   Engine
	Model    *nmt.Model
	Source   *vocab.Vocab
	Target   *vocab.Vocab
	Defaults Defaults
	Name     string
}

// Load opens a model directory holding model.yaml, model.safetensors and the
// two vocabularies.
func (l Loader) Load(dir string) (*LoadResult, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("model path is required")
	}
	cfg, err := nmt.LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	src, err := vocab.LoadFile(filepath.Join(dir, SourceVocabFile), vocab.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("load source vocabulary: %w", err)
	}
	tgt, err := vocab.LoadFile(filepath.Join(dir, TargetVocabFile), vocab.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("load target vocabulary: %w", err)
	}
	if src.Size() > cfg.SrcVocabSize {
		return nil, fmt.Errorf("source vocabulary has %d entries, model was built for %d", src.Size(), cfg.SrcVocabSize)
	}
	if tgt.Size() > cfg.TgtVocabSize {
		return nil, fmt.Errorf("target vocabulary has %d entries, model was built for %d", tgt.Size(), cfg.TgtVocabSize)
	}

	m, err := nmt.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.Load(filepath.Join(dir, WeightsFile)); err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}

	name := filepath.Base(filepath.Clean(dir))
	engine := NewEngine(name, m, src, tgt, EngineOptions{
		MaxTokens:    l.MaxTokens,
		MaxBatch:     l.MaxBatch,
		MaxSourceLen: cfg.MaxSeqLen,
	})
	return &LoadResult{
		Engine:   engine,
		Model:    m,
		Source:   src,
		Target:   tgt,
		Defaults: DefaultsFromConfig(cfg),
		Name:     name,
	}, nil
}

// Create writes a randomly initialised model directory. The vocabulary sizes
// of cfg are taken from src and tgt.
func Create(dir string, cfg nmt.Config, src, tgt *vocab.Vocab, seed int64) (*nmt.Model, error) {
	cfg.SrcVocabSize = src.Size()
	cfg.TgtVocabSize = tgt.Size()
	m, err := nmt.NewRandom(cfg, seed)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := nmt.SaveConfig(filepath.Join(dir, ConfigFile), cfg); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	for name, v := range map[string]*vocab.Vocab{SourceVocabFile: src, TargetVocabFile: tgt} {
		if err := writeVocab(filepath.Join(dir, name), v); err != nil {
			return nil, err
		}
	}
	if err := m.Save(filepath.Join(dir, WeightsFile)); err != nil {
		return nil, fmt.Errorf("save weights: %w", err)
	}
	return m, nil
}

func writeVocab(path string, v *vocab.Vocab) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := v.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
