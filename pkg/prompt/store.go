package prompt

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Prompt is a versioned prompt body.
type Prompt struct {
	Name    string
	Version int
	Body    string
	Meta    map[string]string
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
}

var secretMarkers = []string{"aws_secret_access_key", "begin private key", "sk-", "aiza"}

// Lint runs basic checks on prompts. System prompts must tell the model
// which field carries the command.
func Lint(p Prompt) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	body := strings.TrimSpace(p.Body)
	if body == "" {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	lower := strings.ToLower(body)
	for _, m := range secretMarkers {
		if strings.Contains(lower, m) {
			issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secrets-like content"})
			break
		}
	}
	if p.Name == SystemPrompt && body != "" && !strings.Contains(lower, "command") {
		issues = append(issues, Issue{Rule: "contract.command", Message: "system prompt never mentions the command field"})
	}
	return issues
}

// Store is an in-memory versioned prompt store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]Prompt // ascending by version
}

func NewStore() *Store { return &Store{data: make(map[string][]Prompt)} }

var ErrLintFailed = errors.New("prompt failed lint checks")

// Save appends a new version numbered one past the latest.
// Lint failures return ErrLintFailed together with the issues.
func (s *Store) Save(p Prompt) (Prompt, []Issue, error) {
	if issues := Lint(p); len(issues) > 0 {
		return Prompt{}, issues, ErrLintFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.data[p.Name]
	np := Prompt{Name: p.Name, Version: 1, Body: p.Body, Meta: p.Meta}
	if n := len(versions); n > 0 {
		np.Version = versions[n-1].Version + 1
	}
	s.data[p.Name] = append(versions, np)
	return np, nil, nil
}

// Get retrieves a version; version <= 0 returns the latest.
func (s *Store) Get(name string, version int) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.data[name]
	if len(versions) == 0 {
		return Prompt{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Prompt{}, false
}

// List returns all versions of name in ascending order.
func (s *Store) List(name string) []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Prompt(nil), s.data[name]...)
}
