// Package eval scores the reply validator and prompt builder against recorded
// fixtures without calling a model.
package eval

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/ixentbench/purple/pkg/board"
	"github.com/ixentbench/purple/pkg/command"
	"github.com/ixentbench/purple/pkg/prompt"
)

// Fixture is one recorded model reply and the verdict expected for it.
type Fixture struct {
	Name string `json:"name"`
	// Observation is inline; ObservationFile names a JSON file in the same directory.
	Observation     json.RawMessage `json:"observation,omitempty"`
	ObservationFile string          `json:"observation_file,omitempty"`
	Reply           string          `json:"reply"`
	Expect          Expectation     `json:"expect"`
}

type Expectation struct {
	Accepted bool `json:"accepted"`
	// Command is the canonical accepted command, if checked.
	Command string `json:"command,omitempty"`
	// Code and Constraint are checked on rejection.
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	// PromptContains is checked against the first-attempt prompt.
	PromptContains []string `json:"prompt_contains,omitempty"`
}

// EvaluateReplyFixtures loads *.fixture.json files from dir, checks every reply
// with v and, when b is non-nil, renders the prompt for its observation.
// Returns score [0,1].
func EvaluateReplyFixtures(fsys fs.FS, dir string, v *command.Validator, b *prompt.Builder) (score float64, total int, passed int, details []string, err error) {
	fixtures, err := loadFixtures(fsys, dir)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	total = len(fixtures)
	if total == 0 {
		return 1, 0, 0, nil, nil
	}
	if v == nil {
		v = command.NewValidator(command.DefaultRules(), nil)
	}
	for _, fx := range fixtures {
		problems := check(fsys, dir, fx, v, b)
		for _, p := range problems {
			details = append(details, fx.Name+": "+p)
		}
		if len(problems) == 0 {
			passed++
		}
	}
	score = float64(passed) / float64(total)
	return score, total, passed, details, nil
}

func check(fsys fs.FS, dir string, fx Fixture, v *command.Validator, b *prompt.Builder) []string {
	raw := []byte(fx.Observation)
	if fx.ObservationFile != "" {
		data, err := fs.ReadFile(fsys, path.Join(dir, fx.ObservationFile))
		if err != nil {
			return []string{"observation: " + err.Error()}
		}
		raw = data
	}
	obs, err := board.Decode(raw)
	if err != nil {
		return []string{"observation: " + err.Error()}
	}

	var problems []string
	res := v.Check(fx.Reply, obs)
	switch {
	case res.Accepted != fx.Expect.Accepted:
		problems = append(problems, fmt.Sprintf("accepted=%v want %v (%s)", res.Accepted, fx.Expect.Accepted, res.Reason()))
	case res.Accepted:
		if fx.Expect.Command != "" && res.Command.String() != fx.Expect.Command {
			problems = append(problems, fmt.Sprintf("command %q want %q", res.Command.String(), fx.Expect.Command))
		}
	default:
		if fx.Expect.Code != "" && res.Err.Code != fx.Expect.Code {
			problems = append(problems, fmt.Sprintf("code %q want %q", res.Err.Code, fx.Expect.Code))
		}
		if fx.Expect.Constraint != "" && res.Err.Constraint() != fx.Expect.Constraint {
			problems = append(problems, fmt.Sprintf("constraint %q want %q", res.Err.Constraint(), fx.Expect.Constraint))
		}
	}

	if b != nil && len(fx.Expect.PromptContains) > 0 {
		text, err := b.Build(obs, nil)
		if err != nil {
			return append(problems, "prompt: "+err.Error())
		}
		for _, s := range fx.Expect.PromptContains {
			if !strings.Contains(text, s) {
				problems = append(problems, "prompt missing: "+s)
			}
		}
	}
	return problems
}

func loadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	var out []Fixture
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".fixture.json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ".fixture.json")
		}
		out = append(out, fx)
	}
	return out, nil
}
