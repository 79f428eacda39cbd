// Package credentials looks up remote access tokens by provider name.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logger "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a source holds no token for the provider.
var ErrNotFound = errors.New("credential not found")

// Source returns the token for a provider such as "github".
type Source interface {
	Credential(ctx context.Context, provider string) (string, error)
}

// EnvSource reads tokens from environment variables, one variable per provider.
type EnvSource struct {
	Vars map[string]string
}

func (s EnvSource) Credential(_ context.Context, provider string) (string, error) {
	name, ok := s.Vars[provider]
	if !ok {
		return "", fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	token := strings.TrimSpace(os.Getenv(name))
	if token == "" {
		return "", fmt.Errorf("%s: environment variable %q is not set: %w", provider, name, ErrNotFound)
	}
	return token, nil
}

// FileSource reads the token for a provider from a file named after it in Dir.
type FileSource struct {
	Dir string
}

func (s FileSource) Credential(_ context.Context, provider string) (string, error) {
	if s.Dir == "" || provider == "" || strings.ContainsAny(provider, `/\`) {
		return "", fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	path := filepath.Join(s.Dir, provider)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file %q: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%s: token file %q is empty: %w", provider, path, ErrNotFound)
	}
	logger.Debugf("Read %s token from file %q", provider, path)
	return token, nil
}

// Store writes token as the provider's token file, readable only by the owner.
func (s FileSource) Store(provider, token string) error {
	if s.Dir == "" {
		return errors.New("no token directory configured")
	}
	if provider == "" || strings.ContainsAny(provider, `/\`) {
		return fmt.Errorf("invalid provider %q", provider)
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Dir, err)
	}
	path := filepath.Join(s.Dir, provider)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file %q: %w", path, err)
	}
	return nil
}

// StaticSource holds tokens in memory. The zero value is empty and ready to use.
type StaticSource struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewStaticSource returns a StaticSource seeded with tokens.
func NewStaticSource(tokens map[string]string) *StaticSource {
	s := &StaticSource{}
	for p, t := range tokens {
		s.Set(p, t)
	}
	return s
}

// Set stores or, for an empty token, removes the token of provider.
func (s *StaticSource) Set(provider, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]string)
	}
	if token == "" {
		delete(s.tokens, provider)
		return
	}
	s.tokens[provider] = token
}

func (s *StaticSource) Credential(_ context.Context, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[provider]
	if !ok {
		return "", fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	return token, nil
}

// Chain asks each source in order and returns the first token found. Errors other
// than ErrNotFound stop the search.
type Chain []Source

func (c Chain) Credential(ctx context.Context, provider string) (string, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		token, err := s.Credential(ctx, provider)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", provider, ErrNotFound)
}
