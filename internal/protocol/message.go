package protocol

import (
	"fmt"
	"strings"
)

// Language identifies the toolchain the executor runs the code with.
type Language string

const (
	LanguagePython Language = "python"
	LanguageCPP    Language = "cpp"
	LanguageJava   Language = "java"
)

// DefaultLanguage is used when a request omits the language field.
const DefaultLanguage = LanguagePython

var supportedLanguages = []Language{LanguagePython, LanguageCPP, LanguageJava}

// Languages returns the supported languages in display order.
func Languages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	for _, s := range supportedLanguages {
		if l == s {
			return true
		}
	}
	return false
}

func (l Language) String() string { return string(l) }

// ParseLanguage accepts a language name, case-insensitively, plus a few
// common aliases.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python", "py", "python3":
		return LanguagePython, nil
	case "cpp", "c++", "cxx", "cc":
		return LanguageCPP, nil
	case "java":
		return LanguageJava, nil
	default:
		return "", fmt.Errorf("unknown language %q", s)
	}
}

// ExecutionRequest is the one message a client sends after the
// connection opens.
type ExecutionRequest struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// MessageKind tags a StreamMessage.
type MessageKind string

// Executor → client message kinds.
const (
	KindStatus MessageKind = "status"
	KindOutput MessageKind = "output"
	KindError  MessageKind = "error"
)

// StreamMessage is a single frame pushed by the executor.
type StreamMessage struct {
	Kind MessageKind `json:"type"`
	Data string      `json:"data"`
}

// LanguagesResponse is the body of GET /languages.
type LanguagesResponse struct {
	Languages []Language `json:"languages"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Message string `json:"message"`
}
