// Package orchestrator runs the three-stage protocol behind every answer:
// document selection, keyword derivation, then retrieval plus the streamed
// final answer. The stages are strictly sequential; each consumes the
// previous stage's output.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"course-rag/internal/extractor"
	"course-rag/internal/models"
	"course-rag/internal/search"
	"course-rag/internal/store"
)

// NoSelection is the sentinel the selection stage uses to decline choosing
// a document.
const NoSelection = "No selection"

const (
	helperMaxTokens = 200
	answerMaxTokens = 2000
	helperTimeout   = 60 * time.Second
)

// Store is the read-only view the orchestrator needs. The serving layer
// implements it with a swappable snapshot.
type Store interface {
	Documents() []store.Document
	Lookup(path string) (store.Document, bool)
	TopK(query []float32, k int, keywords []string) []search.Result
	// Dimension is the store's embedding dimension, 0 if the store is empty.
	Dimension() int
}

// QueryEmbedder embeds the derived search string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config tunes one orchestrator instance. Topic names the course in prompts
// (e.g. "college finance course"); it is injected at construction, never read
// from ambient process state.
type Config struct {
	Topic         string
	TopK          int
	HistoryWindow int
}

// Orchestrator answers one course's questions. Safe for concurrent use:
// requests share nothing but the read-only store view.
type Orchestrator struct {
	helper llms.Model
	answer llms.Model
	embed  QueryEmbedder
	store  Store
	cfg    Config

	// documentText loads a selected document's full text; swappable in tests.
	documentText func(path string) (string, error)
}

// New constructs an orchestrator with injected clients and store view.
func New(helper, answer llms.Model, embed QueryEmbedder, st Store, cfg Config) *Orchestrator {
	if cfg.Topic == "" {
		cfg.Topic = "college course"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 3
	}
	return &Orchestrator{
		helper:       helper,
		answer:       answer,
		embed:        embed,
		store:        st,
		cfg:          cfg,
		documentText: extractor.Text,
	}
}

// Answer runs the full protocol for one request, forwarding each generated
// text fragment to emit as soon as it arrives. Any stage error aborts the
// request; there is no partial-answer fallback.
func (o *Orchestrator) Answer(ctx context.Context, req models.ChatRequest, emit func(token string) error) error {
	history := models.TrimHistory(req.History, o.cfg.HistoryWindow)

	// Stage 1: pick at most one document to inline in full. An explicit
	// choice in the request skips the helper call.
	choice := req.DocumentChoice
	if choice == "" {
		var err error
		choice, err = o.selectDocument(ctx, req.Query, history)
		if err != nil {
			return err
		}
	}

	docContext := ""
	if cleaned := cleanSelection(choice); cleaned != "" {
		if doc, ok := o.store.Lookup(cleaned); ok {
			text, err := o.documentText(doc.FilePath)
			if err != nil {
				// Losing the inline document degrades the answer, not the request.
				log.Warn().Err(err).Str("file", doc.FilePath).Msg("could not load selected document")
			} else {
				docContext = "Here is the course document that you already selected as being most useful to answer the student's question:\n" +
					doc.FilePath + "\n" + text + "\n"
			}
		} else {
			log.Debug().Str("choice", cleaned).Msg("selected document not in store, proceeding without")
		}
	}

	// Stage 2: derive search keywords, with the selected document as context.
	keywords, err := o.deriveKeywords(ctx, req.Query, history, docContext)
	if err != nil {
		return err
	}

	// Stage 3: retrieve supplementary chunks and stream the answer.
	searchText := strings.Join(keywords, ", ")
	if searchText == "" {
		searchText = req.Query
	}
	vec, err := o.embed.EmbedQuery(ctx, searchText)
	if err != nil {
		return err
	}
	// A silent mismatch here (embedding model changed after the last build)
	// would score every chunk over a truncated prefix.
	if dim := o.store.Dimension(); dim != 0 && len(vec) != dim {
		return fmt.Errorf("query embedding dimension %d does not match store dimension %d; rebuild the store with the configured embedding model", len(vec), dim)
	}
	results := o.store.TopK(vec, o.cfg.TopK, keywords)

	var chunkTexts []string
	for _, r := range results {
		chunkTexts = append(chunkTexts, r.Chunk.Text)
	}
	contextString := docContext +
		"\nHere is some other content from the course materials that is related to the student's question:\n" +
		strings.Join(chunkTexts, "\n\n")

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, o.answerPolicy()+contextString),
	}
	messages = append(messages, conversationParts(history)...)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Query))

	_, err = o.answer.GenerateContent(ctx, messages,
		llms.WithMaxTokens(answerMaxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return emit(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("answer generation: %w", err)
	}
	return nil
}

func (o *Orchestrator) selectDocument(ctx context.Context, query string, history []models.Message) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "I am teaching a %s. A student has asked a question. "+
		"You cannot speak to the student, so you will not try to answer the question. "+
		"Instead, you are helping me build a prompt to a different LLM that will answer the question. "+
		"This LLM does not know anything about my course except what I provide in the prompt. "+
		"Below I will give you the student's question, and their previous questions to the LLM. "+
		"Then I will give you a list of course documents, where the first line is the file path of the document, "+
		"and the next line is a short description of the document along with some keywords. "+
		"You should reply with the file path of the course document that would be most useful to the LLM in answering the student's question. "+
		"If you do not select a document, reply with \"%s.\"\n\n", o.cfg.Topic, NoSelection)
	for _, doc := range o.store.Documents() {
		// Plain-text files are already retrievable chunk by chunk; offering
		// them for full inlining mostly duplicates retrieval.
		if strings.HasSuffix(doc.FilePath, ".txt") {
			continue
		}
		b.WriteString(doc.FilePath + "\n" + doc.Description + "\n\n")
	}

	messages := []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeSystem, b.String())}
	messages = append(messages, historyParts(history)...)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman,
		"Here is the most recent question the student asked. Remember, do not try to answer the question, "+
			"but instead reply with the name of a document that would be useful to an LLM trying to answer the question. \n"+query))

	resp, err := o.helperCall(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("document selection: %w", err)
	}
	return resp, nil
}

func (o *Orchestrator) deriveKeywords(ctx context.Context, query string, history []models.Message, docContext string) ([]string, error) {
	system := fmt.Sprintf("I am teaching a %s. A student has asked a question. "+
		"You cannot speak to the student, so you will not try to answer the question. "+
		"Instead, you are helping me build a prompt to a different LLM that will answer the question. "+
		"This LLM does not know anything about my course except what I provide in the prompt. "+
		"Below I will give you the question, your conversation history with the student, "+
		"and possibly a course document that you have already selected as being useful to answer the question. "+
		"Now I want you to reply with a list of four or fewer keywords that I should use in a semantic search "+
		"through my course documents to provide the LLM with additional context for the question. "+
		"Start your answer with the first keyword, not with any kind of label, "+
		"and separate each keyword in the list with a semicolon.", o.cfg.Topic)

	messages := []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeSystem, system+docContext)}
	messages = append(messages, historyParts(history)...)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman,
		"Here is the most recent question the student asked. Remember, do not try to answer the question, "+
			"but instead reply with keywords that could be used for a semantic search to give useful information "+
			"to an LLM trying to answer the question. \n"+query))

	resp, err := o.helperCall(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("keyword derivation: %w", err)
	}
	return ParseKeywords(resp), nil
}

func (o *Orchestrator) helperCall(ctx context.Context, messages []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, helperTimeout)
	defer cancel()

	resp, err := o.helper.GenerateContent(ctx, messages, llms.WithMaxTokens(helperMaxTokens))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("helper model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (o *Orchestrator) answerPolicy() string {
	return fmt.Sprintf("You are a helpful TA answering student questions in a %s. "+
		"You refuse to answer questions about people or topics that are not mentioned in the course materials provided below. "+
		"You also refuse to give any information about other students in the class. "+
		"Whenever a dollar sign, percentage sign, or ampersand should appear in the output, you escape it with a backslash. "+
		"Below is some information from the course documents that will be useful in answering the student's question. "+
		"You can use outside information as well, but the information I provide is always more reliable. \n\n", o.cfg.Topic)
}

// historyParts re-labels prior student questions so the helper model does not
// mistake the history for an active dialogue with itself.
func historyParts(history []models.Message) []llms.MessageContent {
	var parts []llms.MessageContent
	for _, m := range history {
		if m.Role != models.RoleUser {
			continue
		}
		parts = append(parts, llms.TextParts(schema.ChatMessageTypeHuman,
			"Here is an earlier question the student asked: "+m.Content))
	}
	return parts
}

// conversationParts converts the trimmed history into model messages with
// their original roles, for the final answer stage only.
func conversationParts(history []models.Message) []llms.MessageContent {
	var parts []llms.MessageContent
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			parts = append(parts, llms.TextParts(schema.ChatMessageTypeHuman, m.Content))
		case models.RoleAssistant:
			parts = append(parts, llms.TextParts(schema.ChatMessageTypeAI, m.Content))
		case models.RoleSystem:
			parts = append(parts, llms.TextParts(schema.ChatMessageTypeSystem, m.Content))
		}
	}
	return parts
}

// cleanSelection normalizes a stage-1 response: surrounding whitespace,
// quotes, and trailing punctuation are stripped, and the no-selection
// sentinel maps to empty.
func cleanSelection(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimRight(s, ".")
	if s == "" || strings.EqualFold(s, NoSelection) {
		return ""
	}
	return s
}

// ParseKeywords splits a semicolon-separated helper response into trimmed,
// non-empty keywords, order and case preserved.
func ParseKeywords(resp string) []string {
	var keywords []string
	for _, part := range strings.Split(resp, ";") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
