// Package classifiertest provides a scripted classifier for tests.
package classifiertest

import (
	"context"
	"sync"

	"github.com/fairguard/backend/internal/classifier"
)

// Fake answers every prompt through Respond. The returned text goes
// through the verdict's own parser, so it exercises the same parsing as a
// real provider answer.
type Fake struct {
	mu      sync.Mutex
	Respond func(p classifier.Prompt) (string, error)
	prompts []classifier.Prompt
}

// Always returns a Fake that answers text to everything
func Always(text string) *Fake {
	return &Fake{Respond: func(classifier.Prompt) (string, error) { return text, nil }}
}

// Failing returns a Fake whose every call fails with err
func Failing(err error) *Fake {
	return &Fake{Respond: func(classifier.Prompt) (string, error) { return "", err }}
}

func (f *Fake) Classify(ctx context.Context, p classifier.Prompt, v classifier.Verdict) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	respond := f.Respond
	f.mu.Unlock()

	text, err := respond(p)
	if err != nil {
		return err
	}
	return v.Parse(text)
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *Fake) Prompts() []classifier.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]classifier.Prompt(nil), f.prompts...)
}
