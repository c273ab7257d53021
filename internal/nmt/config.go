package nmt

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/rnmt/internal/halting"
	"github.com/samcharles93/rnmt/internal/vocab"
)

// ErrInvalidConfig is returned for model configurations that cannot be
// built.
var ErrInvalidConfig = errors.New("nmt: invalid config")

// Config holds the model hyperparameters and decoding defaults stored in
// model.yaml.
type Config struct {
	ISize        int     `yaml:"isize"`
	FFHSize      int     `yaml:"ff_hsize"`
	NHead        int     `yaml:"nhead"`
	AttnHSize    int     `yaml:"attn_hsize,omitempty"`
	EncLayers    int     `yaml:"enc_layers"`
	DecLayers    int     `yaml:"dec_layers"`
	SrcVocabSize int     `yaml:"src_vocab_size"`
	TgtVocabSize int     `yaml:"tgt_vocab_size"`
	MaxSeqLen    int     `yaml:"max_seq_len"`
	NormOutput   bool    `yaml:"norm_output"`
	Projector    bool    `yaml:"projector"`
	Forbidden    []int   `yaml:"forbidden_indexes"`
	HaltEpsilon  float64 `yaml:"halt_epsilon"`

	BeamSize      int     `yaml:"beam_size"`
	LengthPenalty float64 `yaml:"length_penalty"`
	MaxDecodeLen  int     `yaml:"max_decode_len"`
}

// DefaultConfig returns the base configuration. Vocabulary sizes are left at
// zero and must be filled from the vocabularies.
func DefaultConfig() Config {
	return Config{
		ISize:         512,
		FFHSize:       2048,
		NHead:         8,
		EncLayers:     6,
		DecLayers:     6,
		MaxSeqLen:     256,
		NormOutput:    true,
		Projector:     true,
		Forbidden:     vocab.DefaultForbidden(),
		HaltEpsilon:   halting.DefaultEpsilon,
		BeamSize:      4,
		MaxDecodeLen:  512,
		LengthPenalty: 0,
	}
}

// AttnSize is the attention hidden width.
func (c Config) AttnSize() int {
	if c.AttnHSize > 0 {
		return c.AttnHSize
	}
	return c.ISize
}

func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.ISize <= 0:
		return bad("isize must be positive, got %d", c.ISize)
	case c.FFHSize <= 0:
		return bad("ff_hsize must be positive, got %d", c.FFHSize)
	case c.NHead <= 0:
		return bad("nhead must be positive, got %d", c.NHead)
	case c.AttnSize()%c.NHead != 0:
		return bad("attention size %d is not divisible by nhead %d", c.AttnSize(), c.NHead)
	case c.EncLayers < 1:
		return bad("enc_layers must be at least 1, got %d", c.EncLayers)
	case c.DecLayers < 1:
		return bad("dec_layers must be at least 1, got %d", c.DecLayers)
	case c.SrcVocabSize < vocab.FirstWordID:
		return bad("src_vocab_size %d is smaller than the reserved ids", c.SrcVocabSize)
	case c.TgtVocabSize < vocab.FirstWordID:
		return bad("tgt_vocab_size %d is smaller than the reserved ids", c.TgtVocabSize)
	case c.MaxSeqLen < 1:
		return bad("max_seq_len must be at least 1, got %d", c.MaxSeqLen)
	case c.HaltEpsilon <= 0 || c.HaltEpsilon >= 1:
		return bad("halt_epsilon must be in (0, 1), got %v", c.HaltEpsilon)
	case c.BeamSize < 1:
		return bad("beam_size must be at least 1, got %d", c.BeamSize)
	case c.MaxDecodeLen < 1:
		return bad("max_decode_len must be at least 1, got %d", c.MaxDecodeLen)
	case c.LengthPenalty < 0:
		return bad("length_penalty must be >= 0, got %v", c.LengthPenalty)
	}
	for _, id := range c.Forbidden {
		if id < 0 || id >= c.TgtVocabSize {
			return bad("forbidden index %d outside target vocabulary of %d", id, c.TgtVocabSize)
		}
		if id == vocab.EOSID {
			return bad("forbidden indexes must not contain eos")
		}
	}
	return nil
}

// LoadConfig reads and validates a model.yaml. Missing keys keep their
// DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadConfig parses a model.yaml over DefaultConfig without validating it, for
// base configurations whose vocabulary sizes are filled in later.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
