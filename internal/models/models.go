package models

import (
	"fmt"
	"regexp"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the accepted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Validate checks every message in the slice for a known role.
func Validate(msgs []Message) error {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}
	return nil
}

// TrimHistory returns the most recent n messages. The full history is never
// sent to a model; a small sliding window bounds prompt size and cost.
func TrimHistory(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// ChatRequest is the payload of the query endpoint. DocumentChoice is
// optional; when present it overrides the document-selection stage.
type ChatRequest struct {
	Query          string    `json:"query"`
	History        []Message `json:"chat_history_messages"`
	DocumentChoice string    `json:"document_choice,omitempty"`
}

// Source classifications for corpus documents, derived from the file path.
const (
	SourceExam       = "Tests, midterms, and exams from past years"
	SourceTeaching   = "Teaching materials"
	SourceTextbook   = "Textbook"
	SourceTranscript = "Transcripts of class sessions"
	SourceArticle    = "Media articles"
	SourceOther      = "Other"
)

var (
	examRE       = regexp.MustCompile(`(?i)exam|midterm`)
	teachingRE   = regexp.MustCompile(`(?i)module|lecture|week|slide`)
	textbookRE   = regexp.MustCompile(`(?i)textbook`)
	transcriptRE = regexp.MustCompile(`(?i)transcript`)
	articleRE    = regexp.MustCompile(`(?i)discussion|article`)
)

// ClassifySource maps a corpus file path to a source classification.
func ClassifySource(path string) string {
	switch {
	case examRE.MatchString(path):
		return SourceExam
	case teachingRE.MatchString(path):
		return SourceTeaching
	case textbookRE.MatchString(path):
		return SourceTextbook
	case transcriptRE.MatchString(path):
		return SourceTranscript
	case articleRE.MatchString(path):
		return SourceArticle
	}
	return SourceOther
}
