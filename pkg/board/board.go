// Package board models the puzzle state the benchmark sends each turn.
//
// An Observation keeps two views of the same payload: a typed view used for
// command validation, and the untouched JSON document used for prompting, so
// that nothing the benchmark sends is dropped on the way to the model.
package board

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GearTypes lists the inventory keys the benchmark uses.
var GearTypes = []string{"G1", "G2", "G3", "G4"}

// Meta is match-level metadata.
type Meta struct {
	LevelID    FlexString `json:"level_id"`
	AgentID    string     `json:"agent_id,omitempty"`
	Dimensions string     `json:"dimensions"`
	Turn       int        `json:"turn"`
	MaxMoves   int        `json:"max_moves"`
	IdealMoves int        `json:"ideal_moves"`
}

// Status is the game progress block.
type Status struct {
	GameOver          bool    `json:"game_over"`
	Result            string  `json:"result"`
	MiceRescued       int     `json:"mice_rescued"`
	TotalMice         int     `json:"total_mice"`
	CompletionPercent float64 `json:"completion_percent"`
}

// Mouse is one mouse's position. OnBase is nil while the mouse is off the board.
type Mouse struct {
	Pos    string `json:"pos"`
	OnBase *int   `json:"-"`
	Status string `json:"status"`
}

// UnmarshalJSON accepts on_base as a number, null, or the string "null".
func (m *Mouse) UnmarshalJSON(b []byte) error {
	var raw struct {
		Pos    string          `json:"pos"`
		OnBase json.RawMessage `json:"on_base"`
		Status string          `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Pos, m.Status, m.OnBase = raw.Pos, raw.Status, nil
	v := strings.Trim(strings.TrimSpace(string(raw.OnBase)), `"`)
	if v == "" || v == "null" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("board: mouse on_base %q: %w", v, err)
	}
	m.OnBase = &n
	return nil
}

// Data is the physical ground truth of the turn.
type Data struct {
	Inventory     map[string]int    `json:"inventory"`
	Mice          map[string]Mouse  `json:"mice"`
	BoardEncoding map[string]string `json:"board_encoding"`
	History       []string          `json:"history"`
	LastReasoning *string           `json:"last_reasoning"`
}

// Observation is one turn's snapshot. Treat it as read-only after Decode.
type Observation struct {
	Meta   Meta    `json:"meta"`
	Status *Status `json:"status,omitempty"`
	Data   Data    `json:"data"`

	// Raw is the full payload as received (after unwrapping a "state" envelope).
	Raw json.RawMessage `json:"-"`

	board *Board
}

// FlexString decodes either a JSON string or a JSON number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(b)
	return nil
}

var ErrEmptyObservation = errors.New("board: empty observation")

// Decode parses an observation payload. Payloads wrapped as {"state": {...}}
// (the shape of a start_game response) are unwrapped first. The board
// encoding is parsed eagerly so that malformed tiles fail here, not later.
func Decode(payload []byte) (*Observation, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, ErrEmptyObservation
	}
	var envelope struct {
		State json.RawMessage `json:"state"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("board: decode: %w", err)
	}
	if len(envelope.State) > 0 && len(envelope.Data) == 0 {
		payload = envelope.State
	}
	var obs Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		return nil, fmt.Errorf("board: decode: %w", err)
	}
	obs.Raw = append(json.RawMessage(nil), payload...)
	b, err := ParseBoard(obs.Meta.Dimensions, obs.Data.BoardEncoding)
	if err != nil {
		return nil, err
	}
	obs.board = b
	return &obs, nil
}

// Board returns the parsed tile grid.
func (o *Observation) Board() *Board { return o.board }

// InventoryTotal is the number of gears still to be placed.
func (o *Observation) InventoryTotal() int {
	n := 0
	for _, c := range o.Data.Inventory {
		if c > 0 {
			n += c
		}
	}
	return n
}

// Available returns the inventory count for a gear type such as "G3".
func (o *Observation) Available(gearType string) int {
	return o.Data.Inventory[gearType]
}

// CanonicalJSON renders the raw payload with sorted keys and stable indentation.
// Two observations with the same content always render identically.
func (o *Observation) CanonicalJSON() (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(o.Raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("board: canonical json: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("board: canonical json: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// MouseIDs returns mouse identifiers in sorted order.
func (o *Observation) MouseIDs() []string {
	ids := make([]string, 0, len(o.Data.Mice))
	for id := range o.Data.Mice {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
