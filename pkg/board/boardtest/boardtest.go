// Package boardtest holds sample observations shared by tests across packages.
package boardtest

import (
	"testing"

	"github.com/ixentbench/purple/pkg/board"
)

// PlacementTurn is a level-1 observation with gears still in the inventory.
const PlacementTurn = `{"meta": {"level_id": "1", "agent_id": "GEMA-Purple-Proto", "available_levels": ["1", "2", "3", "4", "5", "6"], "dimensions": "3x3", "turn": 5, "max_moves": 22, "ideal_moves": 12},
 "status": {"game_over": false, "result": "IN_PROGRESS", "mice_rescued": 0, "total_mice": 3, "completion_percent": 0.0},
 "scoring": {"raw_points": 20, "benchmark_score": 0},
 "data": {"inventory": {"G1": 1, "G2": 2, "G3": 0, "G4": 0},
  "mice": {"M1": {"pos": "P31", "on_base": 2, "status": "IN_PLAY"}, "M2": {"pos": "P21", "on_base": 2, "status": "IN_PLAY"}, "M3": {"pos": "P40", "on_base": "null", "status": "WAITING"}},
  "board_encoding": {"P11": "G1P11R1B0222", "P21": "G4P21L2B0010", "P31": "G4P31R3B0010", "P12": "P12L", "P22": "obstacle", "P32": "G3P32L2B2001", "P13": "P13R", "P23": "P23L", "P33": "G2P33R1B0202"},
  "history": ["J1: G1@P11(b=2)+90", "J2: G4@P21(b=0)+90", "J3: G4@P31(b=0)+90", "J4: G3@P32(b=0)-90", "J5: G2@P33(b=0)+90"],
  "last_reasoning": "Rotating P33 frees M2"}}`

// RotationTurn is a level-1 observation after the inventory ran out.
const RotationTurn = `{"meta": {"level_id": "1", "dimensions": "3x3", "turn": 9, "max_moves": 22, "ideal_moves": 12},
 "status": {"game_over": false, "result": "IN_PROGRESS", "mice_rescued": 1, "total_mice": 3, "completion_percent": 33.3},
 "scoring": {"raw_points": 45, "benchmark_score": 0},
 "data": {"inventory": {"G1": 0, "G2": 0, "G3": 0, "G4": 0},
  "mice": {"M1": {"pos": "OUT", "on_base": null, "status": "ESCAPED"}, "M2": {"pos": "P21", "on_base": 2, "status": "IN_PLAY"}, "M3": {"pos": "P13", "on_base": 0, "status": "IN_PLAY"}},
  "board_encoding": {"P11": "G1P11R0B0222", "P21": "G4P21L2B0010", "P31": "G4P31R3B0000", "P12": "G2P12L1B0202", "P22": "obstacle", "P32": "G3P32L2B2001", "P13": "G2P13R0B1202", "P23": "P23L", "P33": "G2P33R1B0202"},
  "history": ["J8: G@P33+90", "[EVENT] OK | TOTAL ENTROPY: P32->P12(b=0), P12->P32(b=2)"],
  "last_reasoning": null}}`

// Decode decodes a sample payload or fails the test.
func Decode(t testing.TB, payload string) *board.Observation {
	t.Helper()
	obs, err := board.Decode([]byte(payload))
	if err != nil {
		t.Fatalf("decode sample observation: %v", err)
	}
	return obs
}
