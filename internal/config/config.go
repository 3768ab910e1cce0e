package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration file: one entry per course.
type Config struct {
	Courses map[string]Course `yaml:"courses"`
}

// Course describes one course instance: where its corpus lives, where its
// chunk store is written, and how the serving process behaves.
type Course struct {
	CorpusDir string `yaml:"corpus_dir"`
	StorePath string `yaml:"store_path"`
	Topic     string `yaml:"topic"`
	Port      int    `yaml:"port"`

	LLM      LLMConfig      `yaml:"llm"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Search   SearchConfig   `yaml:"search"`
	Ingest   IngestConfig   `yaml:"ingest"`

	// HistoryWindow is the number of most recent conversation messages
	// forwarded to any LLM stage.
	HistoryWindow int `yaml:"history_window"`

	Debug bool `yaml:"debug"`
}

type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	HelperModel    string `yaml:"helper_model"`
	AnswerModel    string `yaml:"answer_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type ChunkingConfig struct {
	// Policy selects the chunk builder: "paragraph" or "character".
	Policy string `yaml:"policy"`
	// Paragraph policy: window size and step in paragraphs.
	Window int `yaml:"window"`
	Step   int `yaml:"step"`
	// Character policy: chunk size and overlap in characters.
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type SearchConfig struct {
	TopK int `yaml:"top_k"`
	// Rerank enables the lexical second stage over Candidates semantic hits.
	Rerank     bool `yaml:"rerank"`
	Candidates int  `yaml:"candidates"`
}

type IngestConfig struct {
	Workers      int   `yaml:"workers"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

const (
	defaultHelperModel    = "gpt-4o-mini"
	defaultAnswerModel    = "gpt-4o"
	defaultEmbeddingModel = "text-embedding-ada-002"

	defaultHistoryWindow = 3
	defaultTopK          = 10
	defaultCandidates    = 30
	defaultWorkers       = 8
	defaultMaxFileBytes  = 1_000_000

	defaultWindow  = 3
	defaultStep    = 3
	defaultSize    = 1000
	defaultOverlap = 50
)

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Course returns the configuration for one course key with defaults applied.
// An unknown key is an error; callers treat it as fatal at startup.
func (c *Config) Course(key string) (Course, error) {
	course, ok := c.Courses[key]
	if !ok {
		return Course{}, fmt.Errorf("course %q not found in config", key)
	}
	if course.CorpusDir == "" || course.StorePath == "" {
		return Course{}, fmt.Errorf("course %q: corpus_dir and store_path are required", key)
	}
	course.applyDefaults()
	return course, nil
}

func (c *Course) applyDefaults() {
	if c.LLM.HelperModel == "" {
		c.LLM.HelperModel = defaultHelperModel
	}
	if c.LLM.AnswerModel == "" {
		c.LLM.AnswerModel = defaultAnswerModel
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = defaultEmbeddingModel
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.Search.TopK == 0 {
		c.Search.TopK = defaultTopK
	}
	if c.Search.Candidates == 0 {
		c.Search.Candidates = defaultCandidates
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = defaultWorkers
	}
	if c.Ingest.MaxFileBytes == 0 {
		c.Ingest.MaxFileBytes = defaultMaxFileBytes
	}
	if c.Chunking.Policy == "" {
		c.Chunking.Policy = "character"
	}
	if c.Chunking.Window == 0 {
		c.Chunking.Window = defaultWindow
	}
	if c.Chunking.Step == 0 {
		c.Chunking.Step = defaultStep
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = defaultSize
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = defaultOverlap
	}
	if c.Port == 0 {
		c.Port = 5000
	}
}
