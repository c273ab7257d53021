package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samcharles93/rnmt/internal/inference"
)

// ModelLoader opens a model directory. inference.Loader implements it.
type ModelLoader interface {
	Load(dir string) (*inference.LoadResult, error)
}

type EngineProvider interface {
	WithEngine(ctx context.Context, modelID string, fn func(name string, engine inference.Engine, defaults inference.Defaults) error) error
	ListModels() ([]string, error)
}

type EngineProviderConfig struct {
	DefaultModelPath string
	ModelsPath       string
	Loader           ModelLoader
}

type CachedEngineProvider struct {
	cfg   EngineProviderConfig
	mu    sync.Mutex
	cache map[string]*engineEntry
}

type engineEntry struct {
	name     string
	engine   inference.Engine
	defaults inference.Defaults
}

const envModelsDir = "RNMT_MODELS_DIR"

func NewCachedEngineProvider(cfg EngineProviderConfig) *CachedEngineProvider {
	if cfg.Loader == nil {
		cfg.Loader = inference.Loader{}
	}
	return &CachedEngineProvider{
		cfg:   cfg,
		cache: make(map[string]*engineEntry),
	}
}

// WithEngine resolves modelID, loading it on first use, and runs fn with it.
// Engines serialise their own decoding, so fn may run concurrently.
func (p *CachedEngineProvider) WithEngine(ctx context.Context, modelID string, fn func(name string, engine inference.Engine, defaults inference.Defaults) error) error {
	path, err := p.resolveModelPath(modelID)
	if err != nil {
		return err
	}
	entry, err := p.getOrLoad(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(entry.name, entry.engine, entry.defaults)
}

// ListModels names every model the provider can serve.
func (p *CachedEngineProvider) ListModels() ([]string, error) {
	var names []string
	if p.cfg.DefaultModelPath != "" {
		names = append(names, modelName(p.cfg.DefaultModelPath))
	}
	if dir := p.modelsDir(); dir != "" {
		models, err := discoverModels(dir)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			names = append(names, modelName(m))
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Close releases every loaded engine.
func (p *CachedEngineProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for path, entry := range p.cache {
		errs = append(errs, entry.engine.Close())
		delete(p.cache, path)
	}
	return errors.Join(errs...)
}

func (p *CachedEngineProvider) getOrLoad(path string) (*engineEntry, error) {
	p.mu.Lock()
	entry, ok := p.cache[path]
	p.mu.Unlock()
	if ok {
		return entry, nil
	}

	result, err := p.cfg.Loader.Load(path)
	if err != nil {
		return nil, err
	}
	newEntry := &engineEntry{
		name:     result.Name,
		engine:   result.Engine,
		defaults: result.Defaults,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[path]; ok {
		_ = newEntry.engine.Close()
		return existing, nil
	}
	p.cache[path] = newEntry
	return newEntry, nil
}

func (p *CachedEngineProvider) resolveModelPath(modelID string) (string, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID != "" {
		if strings.ContainsRune(modelID, filepath.Separator) {
			return filepath.Clean(modelID), nil
		}
		if p.cfg.DefaultModelPath != "" && modelName(p.cfg.DefaultModelPath) == modelID {
			return filepath.Clean(p.cfg.DefaultModelPath), nil
		}
		modelsDir := p.modelsDir()
		if modelsDir == "" {
			return "", fmt.Errorf("%w: %q (no models path configured)", ErrModelNotFound, modelID)
		}
		cand := filepath.Join(modelsDir, modelID)
		if isModelDir(cand) {
			return cand, nil
		}
		return "", fmt.Errorf("%w: %q in %s", ErrModelNotFound, modelID, modelsDir)
	}

	if p.cfg.DefaultModelPath != "" {
		return filepath.Clean(p.cfg.DefaultModelPath), nil
	}
	modelsDir := p.modelsDir()
	if modelsDir == "" {
		return "", newInvalidRequest("model is required")
	}
	models, err := discoverModels(modelsDir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 1:
		return models[0], nil
	case 0:
		return "", fmt.Errorf("%w: no model directories in %s", ErrModelNotFound, modelsDir)
	default:
		return "", newInvalidRequest(fmt.Sprintf("multiple models found in %s; specify model", modelsDir))
	}
}

func (p *CachedEngineProvider) modelsDir() string {
	if strings.TrimSpace(p.cfg.ModelsPath) != "" {
		return strings.TrimSpace(p.cfg.ModelsPath)
	}
	return strings.TrimSpace(os.Getenv(envModelsDir))
}

func modelName(path string) string {
	return filepath.Base(filepath.Clean(path))
}

func isModelDir(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, inference.ConfigFile))
	return err == nil && !st.IsDir()
}

// discoverModels lists the subdirectories of dir that hold a model.yaml.
func discoverModels(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if isModelDir(path) {
			models = append(models, path)
		}
	}
	return models, nil
}
