package cli

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tsumiki-ai/ragcore/internal/adapters/driven/config/file"
	openaiembed "github.com/tsumiki-ai/ragcore/internal/adapters/driven/embedding/openai"
	"github.com/tsumiki-ai/ragcore/internal/adapters/driven/llm/anthropic"
	openaillm "github.com/tsumiki-ai/ragcore/internal/adapters/driven/llm/openai"
	"github.com/tsumiki-ai/ragcore/internal/adapters/driven/searchstore/sqlite"
	"github.com/tsumiki-ai/ragcore/internal/core/domain"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driven"
	"github.com/tsumiki-ai/ragcore/internal/core/ports/driving"
	"github.com/tsumiki-ai/ragcore/internal/core/services"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// Package-level services, built once on first use. Tests swap these
// for mocks.
var (
	indexerService driving.Indexer
	answerService  driving.Answerer

	pipelineSettings domain.Settings
	setupOnce        sync.Once
	setupErr         error
)

// ensureIndexer builds the pipeline if needed and checks indexing is
// available.
func ensureIndexer() error {
	if indexerService != nil {
		return nil
	}
	if err := buildPipelineOnce(); err != nil {
		return err
	}
	if indexerService == nil {
		return errors.New("indexing service not configured")
	}
	return nil
}

// ensureAnswerer builds the pipeline if needed and checks generation is
// available.
func ensureAnswerer() error {
	if answerService != nil {
		return nil
	}
	if err := buildPipelineOnce(); err != nil {
		return err
	}
	if answerService == nil {
		return errors.New("no generation provider configured (set llm.api_key in config, or OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	}
	return nil
}

func buildPipelineOnce() error {
	setupOnce.Do(func() {
		setupErr = buildPipeline()
	})
	return setupErr
}

// buildPipeline wires config, adapters, and services.
func buildPipeline() error {
	cfg, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("Config loaded from %s", cfg.Path())

	store, err := sqlite.NewStore(cfg.GetString("storage.data_dir"))
	if err != nil {
		return fmt.Errorf("opening search store: %w", err)
	}
	logger.Debug("Search index at %s", store.Path())

	embedKey := firstNonEmpty(cfg.GetString("embedding.api_key"), os.Getenv("OPENAI_API_KEY"))
	if embedKey == "" {
		return errors.New("no embedding provider configured (set embedding.api_key in config, or OPENAI_API_KEY)")
	}
	embedder, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:  embedKey,
		BaseURL: cfg.GetString("embedding.base_url"),
		Model:   cfg.GetString("embedding.model"),
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	llm, err := buildGenerationService(cfg)
	if err != nil {
		return err
	}

	promptStore, err := file.NewPromptStore(cfg.GetString("prompts.dir"))
	if err != nil {
		return fmt.Errorf("creating prompt store: %w", err)
	}

	pipelineSettings = resolveSettings(cfg)

	chunker := services.NewChunkingEngine(
		services.WithMaxChunkSize(pipelineSettings.MaxChunkSize),
		services.WithMinChunkSize(pipelineSettings.MinChunkSize),
		services.WithOverlapSize(pipelineSettings.OverlapSize),
	)
	indexerService = services.NewIndexingService(chunker, store, embedder)

	retriever := services.NewHybridRetriever(store)
	expansion := services.NewQueryExpansionService(llm, embedder)
	expansion.SetPromptStore(promptStore)

	if llm != nil {
		reranker := services.NewReranker(llm)
		reranker.SetPromptStore(promptStore)

		orchestrator := services.NewRAGOrchestrator(retriever, expansion, reranker, llm, pipelineSettings)
		orchestrator.SetPromptStore(promptStore)
		answerService = orchestrator
		logger.Debug("Generation provider: %s", llm.ModelName())
	} else {
		logger.Debug("No generation provider configured; query command unavailable")
	}

	return nil
}

// buildGenerationService creates the configured LLM adapter, or nil
// when no provider credentials are available.
func buildGenerationService(cfg driven.ConfigStore) (driven.GenerationService, error) {
	provider := cfg.GetString("llm.provider")

	anthropicKey := firstNonEmpty(cfg.GetString("llm.api_key"), os.Getenv("ANTHROPIC_API_KEY"))
	openaiKey := firstNonEmpty(cfg.GetString("llm.api_key"), os.Getenv("OPENAI_API_KEY"))

	switch provider {
	case "anthropic":
		if anthropicKey == "" {
			return nil, errors.New("llm.provider is anthropic but no API key is configured")
		}
		svc, err := anthropic.NewGenerationService(anthropic.Config{
			APIKey:  anthropicKey,
			BaseURL: cfg.GetString("llm.base_url"),
			Model:   cfg.GetString("llm.model"),
		})
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "openai":
		if openaiKey == "" {
			return nil, errors.New("llm.provider is openai but no API key is configured")
		}
		svc, err := openaillm.NewGenerationService(openaillm.Config{
			APIKey:  openaiKey,
			BaseURL: cfg.GetString("llm.base_url"),
			Model:   cfg.GetString("llm.model"),
		})
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "":
		// No explicit provider: use whichever key is present
		if openaiKey != "" {
			svc, err := openaillm.NewGenerationService(openaillm.Config{
				APIKey: openaiKey,
				Model:  cfg.GetString("llm.model"),
			})
			if err != nil {
				return nil, err
			}
			return svc, nil
		}
		if anthropicKey != "" {
			svc, err := anthropic.NewGenerationService(anthropic.Config{
				APIKey: anthropicKey,
				Model:  cfg.GetString("llm.model"),
			})
			if err != nil {
				return nil, err
			}
			return svc, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm.provider %q", provider)
	}
}

// resolveSettings overlays config values onto the defaults.
func resolveSettings(cfg driven.ConfigStore) domain.Settings {
	s := domain.DefaultSettings()
	if v := cfg.GetInt("chunking.max_size"); v > 0 {
		s.MaxChunkSize = v
	}
	if v := cfg.GetInt("chunking.min_size"); v > 0 {
		s.MinChunkSize = v
	}
	if v := cfg.GetInt("chunking.overlap"); v > 0 {
		s.OverlapSize = v
	}
	if v := cfg.GetFloat("search.alpha"); v > 0 {
		s.Alpha = v
	}
	if v := cfg.GetFloat("search.threshold"); v > 0 {
		s.Threshold = v
	}
	if v := cfg.GetInt("search.limit"); v > 0 {
		s.SearchLimit = v
	}
	if v := cfg.GetInt("answer.max_chunks"); v > 0 {
		s.MaxChunks = v
	}
	if v := cfg.GetInt("answer.expansion_count"); v > 0 {
		s.ExpansionCount = v
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
