// Package playground is the state a code editor view binds to: the
// selected language, the editable code, and the live execution output.
package playground

import (
	"sync"

	"livecode/internal/protocol"
	"livecode/internal/session"
)

// Runner is the session controller behind a Playground.
// *session.Controller satisfies it.
type Runner interface {
	Start(req protocol.ExecutionRequest) error
	IsExecuting() bool
	Output() string
	State() session.State
	Close() error
}

// Playground holds the editable state and triggers executions.
type Playground struct {
	runner    Runner
	templates Templates

	mu       sync.RWMutex
	language protocol.Language
	code     string
}

// New creates a playground showing lang's template.
func New(runner Runner, templates Templates, lang protocol.Language) *Playground {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Playground{
		runner:    runner,
		templates: templates,
		language:  lang,
		code:      templates.For(lang),
	}
}

// Language returns the selected language.
func (p *Playground) Language() protocol.Language {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.language
}

// Code returns the current editable code.
func (p *Playground) Code() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.code
}

// SetCode replaces the editable code.
func (p *Playground) SetCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = code
}

// IsExecuting reports whether a run is in progress.
func (p *Playground) IsExecuting() bool {
	return p.runner.IsExecuting()
}

// Output returns the output of the current or last run.
func (p *Playground) Output() string {
	return p.runner.Output()
}

// State returns the state of the current or last run.
func (p *Playground) State() session.State {
	return p.runner.State()
}

// RunCode starts executing the current code. It is ignored while a run
// is in progress.
func (p *Playground) RunCode() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.runner.Start(protocol.ExecutionRequest{Code: p.code, Language: p.language})
}

// ChangeLanguage selects lang and resets the code to its template. It
// returns false, changing nothing, while a run is in progress or when
// lang is not supported.
func (p *Playground) ChangeLanguage(lang protocol.Language) bool {
	if !lang.Valid() {
		return false
	}

	// Held across the check so a run cannot start in between.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runner.IsExecuting() {
		return false
	}
	p.language = lang
	p.code = p.templates.For(lang)
	return true
}

// Close tears down any running session.
func (p *Playground) Close() error {
	return p.runner.Close()
}
