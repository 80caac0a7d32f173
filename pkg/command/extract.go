package command

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/itchyny/gojq"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/errmodel"
)

// Default jq expressions used to pull fields out of a JSON reply.
const (
	DefaultCommandQuery   = `.command`
	DefaultReasoningQuery = `.reasoning // .rationale // .explanation`
)

// ModelReplySchema is the JSON shape the model is asked to produce.
var ModelReplySchema = []byte(`{
  "type": "object",
  "properties": {
    "command": {"type": "string"},
    "reasoning": {"type": "string"}
  }
}`)

// Extracted is the command text and rationale located in a model reply.
type Extracted struct {
	Command   string
	Rationale string
	// JSON is true when the reply was read as a JSON object.
	JSON bool
}

// Extractor locates the command and rationale in raw model text. JSON replies
// (optionally fenced, repaired when malformed) are queried with jq; anything
// else falls back to COMMAND:/REASONING: marker lines, and last to a line
// that is a command on its own.
type Extractor struct {
	command   *gojq.Query
	reasoning *gojq.Query
	schema    *agent.Schema
}

// NewExtractor compiles the jq expressions. Empty expressions select the defaults.
func NewExtractor(commandExpr, reasoningExpr string) (*Extractor, error) {
	if commandExpr == "" {
		commandExpr = DefaultCommandQuery
	}
	if reasoningExpr == "" {
		reasoningExpr = DefaultReasoningQuery
	}
	cq, err := gojq.Parse(commandExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid command query %q: %w", commandExpr, err)
	}
	rq, err := gojq.Parse(reasoningExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid reasoning query %q: %w", reasoningExpr, err)
	}
	return &Extractor{command: cq, reasoning: rq, schema: agent.MustCompileSchema(ModelReplySchema)}, nil
}

// DefaultExtractor uses DefaultCommandQuery and DefaultReasoningQuery.
func DefaultExtractor() *Extractor {
	e, err := NewExtractor("", "")
	if err != nil {
		panic(err)
	}
	return e
}

var (
	fenceRe     = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")
	commandRe   = regexp.MustCompile(`(?i)^[\s*_#>-]*command[\s*_]*[:=]\s*(.*)$`)
	reasoningRe = regexp.MustCompile(`(?i)^[\s*_#>-]*(?:reasoning|rationale)[\s*_]*[:=]\s*(.*)$`)
)

// Extract returns the command text and rationale. It fails with a parse
// error when the reply is empty, has no locatable command or no rationale.
func (e *Extractor) Extract(raw string) (Extracted, *errmodel.Error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Extracted{}, errmodel.ParseError("reply is empty", "")
	}
	doc, ok := e.decodeObject(text)
	if !ok {
		return fromMarkers(text)
	}
	ext, err := e.fromJSON(doc)
	if err == nil {
		return ext, nil
	}
	// Braces inside prose can look like JSON after repair.
	if alt, merr := fromMarkers(text); merr == nil {
		return alt, nil
	}
	return Extracted{}, err
}

func (e *Extractor) decodeObject(text string) (map[string]any, bool) {
	candidate := text
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}")
	if start < 0 {
		return nil, false
	}
	if end > start {
		candidate = candidate[start : end+1]
	} else {
		candidate = candidate[start:]
	}
	var doc map[string]any
	if err := unmarshalJSON([]byte(candidate), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// unmarshalJSON repairs syntactically broken JSON once before giving up.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func (e *Extractor) fromJSON(doc map[string]any) (Extracted, *errmodel.Error) {
	if err := e.schema.Validate(doc); err != nil {
		return Extracted{}, errmodel.ParseError("reply JSON has the wrong shape: "+err.Error(), "")
	}
	cmd := strings.TrimSpace(runQuery(e.command, doc))
	if cmd == "" {
		return Extracted{}, errmodel.ParseError("reply JSON has no command", "")
	}
	why := strings.TrimSpace(runQuery(e.reasoning, doc))
	if why == "" {
		return Extracted{}, errmodel.ParseError("reply has no reasoning", cmd)
	}
	return Extracted{Command: unquote(cmd), Rationale: why, JSON: true}, nil
}

// runQuery returns the first string result, or "".
func runQuery(q *gojq.Query, doc map[string]any) string {
	iter := q.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fromMarkers(text string) (Extracted, *errmodel.Error) {
	var (
		cmd       string
		found     bool
		reasoning []string
		prose     []string
		inReason  bool
	)
	for _, line := range strings.Split(text, "\n") {
		if m := commandRe.FindStringSubmatch(line); m != nil {
			if found {
				return Extracted{}, errmodel.ParseError("reply contains more than one command marker", strings.TrimSpace(line))
			}
			cmd, found, inReason = unquote(m[1]), true, false
			continue
		}
		if m := reasoningRe.FindStringSubmatch(line); m != nil {
			inReason = true
			if s := strings.TrimSpace(m[1]); s != "" {
				reasoning = append(reasoning, s)
			}
			continue
		}
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if inReason {
			reasoning = append(reasoning, s)
		} else {
			prose = append(prose, s)
		}
	}
	if !found {
		return fromBareLine(text)
	}
	if cmd == "" {
		return Extracted{}, errmodel.ParseError("command marker is empty", "")
	}
	why := strings.Join(reasoning, " ")
	if why == "" {
		why = strings.Join(prose, " ")
	}
	if why == "" {
		return Extracted{}, errmodel.ParseError("reply has no reasoning", cmd)
	}
	return Extracted{Command: cmd, Rationale: why}, nil
}

// fromBareLine accepts a reply whose command stands alone on a line without a
// marker. The remaining lines are the rationale.
func fromBareLine(text string) (Extracted, *errmodel.Error) {
	var (
		cmd   string
		prose []string
	)
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if c := unquote(s); c != "" {
			if _, err := Parse(c); err == nil {
				if cmd != "" {
					return Extracted{}, errmodel.ParseError("reply contains more than one command line", s)
				}
				cmd = c
				continue
			}
		}
		prose = append(prose, s)
	}
	if cmd == "" {
		return Extracted{}, errmodel.ParseError("no command marker found in reply", excerpt(text))
	}
	if len(prose) == 0 {
		return Extracted{}, errmodel.ParseError("reply has no reasoning", cmd)
	}
	return Extracted{Command: cmd, Rationale: strings.Join(prose, " ")}, nil
}

// unquote strips markdown and quote decoration around a command.
func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "`\"'*"))
}

func excerpt(s string) string {
	const n = 80
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
