package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"course-rag/internal/config"
)

// Clients bundles the model tiers used by one course instance: a lightweight
// helper model for orchestration steps, a stronger model for final answers,
// and the embedding client. Constructed once at startup and passed down;
// nothing here is global.
type Clients struct {
	Helper   llms.Model
	Answer   llms.Model
	Embedder *Embedder
}

// NewClients builds the OpenAI-compatible clients from course configuration.
// The API key is read from OPENAI_API_KEY by the underlying client.
func NewClients(cfg config.LLMConfig) (*Clients, error) {
	var base []openai.Option
	if cfg.BaseURL != "" {
		base = append(base, openai.WithBaseURL(cfg.BaseURL))
	}

	helper, err := openai.New(append(base, openai.WithModel(cfg.HelperModel))...)
	if err != nil {
		return nil, fmt.Errorf("initializing helper model: %w", err)
	}

	answer, err := openai.New(append(base, openai.WithModel(cfg.AnswerModel))...)
	if err != nil {
		return nil, fmt.Errorf("initializing answer model: %w", err)
	}

	embedLLM, err := openai.New(append(base, openai.WithEmbeddingModel(cfg.EmbeddingModel))...)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding model: %w", err)
	}
	impl, err := embeddings.NewEmbedder(embedLLM)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Clients{
		Helper:   helper,
		Answer:   answer,
		Embedder: NewEmbedder(impl),
	}, nil
}
