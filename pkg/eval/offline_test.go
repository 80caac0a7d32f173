package eval

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ixentbench/purple/pkg/board/boardtest"
	"github.com/ixentbench/purple/pkg/prompt"
)

func TestEvaluateReplyFixtures_Testdata(t *testing.T) {
	b, err := prompt.NewBuilder(nil)
	if err != nil {
		t.Fatal(err)
	}
	score, total, passed, details, err := EvaluateReplyFixtures(os.DirFS("testdata"), ".", nil, b)
	if err != nil {
		t.Fatal(err)
	}
	if total < 10 || passed != total || score != 1 {
		t.Fatalf("score=%v total=%d passed=%d details=%v", score, total, passed, details)
	}
}

func TestEvaluateReplyFixtures_ReportsMismatch(t *testing.T) {
	fsys := fstest.MapFS{
		"cases/obs.json":            {Data: []byte(boardtest.RotationTurn)},
		"cases/ok.fixture.json":     {Data: []byte(`{"observation_file":"obs.json","reply":"{\"command\":\"G@P21+90\",\"reasoning\":\"x\"}","expect":{"accepted":true}}`)},
		"cases/wrong.fixture.json":  {Data: []byte(`{"name":"wrong","observation_file":"obs.json","reply":"{\"command\":\"G@P21+90\",\"reasoning\":\"x\"}","expect":{"accepted":false,"code":"parse_error"}}`)},
		"cases/nofile.fixture.json": {Data: []byte(`{"name":"nofile","observation_file":"missing.json","reply":"PASS"}`)},
	}
	score, total, passed, details, err := EvaluateReplyFixtures(fsys, "cases", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || passed != 1 || score <= 0.33 || score >= 0.34 {
		t.Fatalf("score=%v total=%d passed=%d", score, total, passed)
	}
	joined := strings.Join(details, "\n")
	for _, want := range []string{"wrong: accepted=true want false", "nofile: observation"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("details missing %q:\n%s", want, joined)
		}
	}
}

func TestEvaluateReplyFixtures_EmptyAndMissing(t *testing.T) {
	s, tot, pass, _, err := EvaluateReplyFixtures(fstest.MapFS{"cases/readme.txt": {Data: []byte("x")}}, "cases", nil, nil)
	if err != nil || s != 1 || tot != 0 || pass != 0 {
		t.Fatalf("empty: score=%v total=%d passed=%d err=%v", s, tot, pass, err)
	}
	if _, _, _, _, err := EvaluateReplyFixtures(fstest.MapFS{}, "cases", nil, nil); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing dir: err=%v", err)
	}
}
