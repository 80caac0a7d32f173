package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ixentbench/purple/pkg/board"
)

// SystemPrompt is the store name of the game rules prompt.
const SystemPrompt = "system"

// DefaultRules is version 1 of the system prompt.
//
//go:embed rules.md
var DefaultRules string

// Rejection describes why the previous attempt was refused.
type Rejection struct {
	Attempt int
	Reason  string
	Reply   string
}

const maxReplyExcerpt = 400

var turnTemplate = template.Must(template.New("turn").Parse(`{{.Rules}}

CURRENT SITUATION
Level {{.Level}}, turn {{.Turn}}. Gears left in inventory: {{.Inventory}}.
{{if .Placing}}You must place a gear this turn.{{else}}The inventory is empty: rotate the network, optionally with pre-moves.{{end}}

Observation:
{{.Observation}}
{{with .Rejection}}
PREVIOUS ATTEMPT {{.Attempt}} WAS REJECTED
Reason: {{.Reason}}
Your reply was: {{.Reply}}
Fix the problem above and answer again.
{{end}}
Return your move now as the JSON object described above.
`))

// Builder renders the prompt for one attempt from the latest system prompt.
type Builder struct {
	store *Store
}

// NewBuilder returns a Builder over store. A nil store, or one without a
// system prompt, is seeded with DefaultRules.
func NewBuilder(store *Store) (*Builder, error) {
	if store == nil {
		store = NewStore()
	}
	if _, ok := store.Get(SystemPrompt, 0); !ok {
		if _, issues, err := store.Save(Prompt{Name: SystemPrompt, Body: DefaultRules, Meta: map[string]string{"source": "embedded"}}); err != nil {
			return nil, fmt.Errorf("seed system prompt: %w (%v)", err, issues)
		}
	}
	return &Builder{store: store}, nil
}

// Rules returns the system prompt in use.
func (b *Builder) Rules() Prompt {
	p, _ := b.store.Get(SystemPrompt, 0)
	return p
}

// Build renders the prompt for obs. rej is nil on the first attempt.
// The result depends only on its inputs and the stored rules.
func (b *Builder) Build(obs *board.Observation, rej *Rejection) (string, error) {
	if obs == nil {
		return "", board.ErrEmptyObservation
	}
	js, err := obs.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("encode observation: %w", err)
	}
	data := struct {
		Rules       string
		Level       string
		Turn        int
		Inventory   int
		Placing     bool
		Observation string
		Rejection   *Rejection
	}{
		Rules:       strings.TrimSpace(b.Rules().Body),
		Level:       string(obs.Meta.LevelID),
		Turn:        obs.Meta.Turn,
		Inventory:   obs.InventoryTotal(),
		Placing:     obs.InventoryTotal() > 0,
		Observation: js,
	}
	if rej != nil {
		r := *rej
		r.Reply = excerpt(r.Reply)
		data.Rejection = &r
	}
	var sb strings.Builder
	if err := turnTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(empty)"
	}
	if len(s) <= maxReplyExcerpt {
		return s
	}
	cut := maxReplyExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
