package match

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestWordAt(t *testing.T) {
	cases := []struct {
		line   string
		cursor int
		want   string
	}{
		{"git checkout ma", 15, "ma"},
		{"cd ", 3, ""},
		{"echo a|gr", 9, "gr"},
	}
	for _, c := range cases {
		if got := WordAt(c.line, c.cursor); got != c.want {
			t.Errorf("WordAt(%q, %d) = %q, want %q", c.line, c.cursor, got, c.want)
		}
	}
}

func TestComputeLCD(t *testing.T) {
	matches := []Match{{Text: "readline"}, {Text: "readme"}, {Text: "readonly"}}
	if got := ComputeLCD(matches, false); got != "read" {
		t.Errorf("ComputeLCD = %q, want %q", got, "read")
	}
}

func TestComputeLCDCaseFold(t *testing.T) {
	matches := []Match{{Text: "my-file"}, {Text: "my_other"}}
	got := ComputeLCD(matches, true)
	if len(got) < 2 {
		t.Errorf("ComputeLCD with fold = %q, want at least \"my\"", got)
	}
}

func TestSetAddDeduplicates(t *testing.T) {
	s := NewSet()
	s.Add(Match{Text: "foo"}, false)
	s.Add(Match{Text: "foo"}, false)
	s.Add(Match{Text: "bar"}, false)
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

func TestSetAddCaseFoldDashUnderscore(t *testing.T) {
	s := NewSet()
	s.Add(Match{Text: "my-file"}, true)
	s.Add(Match{Text: "MY_FILE"}, true)
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (dash/underscore should fold together)", s.Len())
	}
}

type fnGenerator struct {
	fn func(ctx Context) (Result, error)
}

func (g fnGenerator) Generate(ctx Context) (Result, error) { return g.fn(ctx) }

func TestPipelineGenerateRunsInPriorityOrder(t *testing.T) {
	p := NewPipeline()
	var order []string
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		order = append(order, "second")
		return None(), nil
	}}, 20)
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		order = append(order, "first")
		return None(), nil
	}}, 10)

	p.Generate("foo", 3)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestPipelineExclusiveStopsLowerPriority(t *testing.T) {
	p := NewPipeline()
	ran := false
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		return Result{Matches: []Match{{Text: "only"}}, Exclusive: true}, nil
	}}, 10)
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		ran = true
		return None(), nil
	}}, 20)

	set := p.Generate("x", 1)
	if ran {
		t.Fatal("lower-priority generator should not have run after an exclusive result")
	}
	if set.Len() != 1 {
		t.Fatalf("Len = %d, want 1", set.Len())
	}
}

func TestPipelineGeneratorPanicTreatedAsNone(t *testing.T) {
	p := NewPipeline()
	var faulted error
	p.OnFault(func(err error) { faulted = err })
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		panic("boom")
	}}, 10)
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		return Result{Matches: []Match{{Text: "survivor"}}}, nil
	}}, 20)

	set := p.Generate("x", 1)
	if set.Len() != 1 || set.Matches()[0].Text != "survivor" {
		t.Fatalf("expected the panic to be swallowed and the next generator to still contribute, got %+v", set.Matches())
	}
	if faulted == nil || !errors.Is(faulted, ErrGeneratorFault) {
		t.Fatalf("expected a logged ErrGeneratorFault, got %v", faulted)
	}
}

func TestPipelineGeneratorErrorTreatedAsNone(t *testing.T) {
	p := NewPipeline()
	p.Registry.Register(fnGenerator{func(ctx Context) (Result, error) {
		return Result{}, errors.New("disk full")
	}}, 10)

	set := p.Generate("x", 1)
	if set.Len() != 0 {
		t.Fatalf("Len = %d, want 0", set.Len())
	}
}

func TestApplyFilterFallsBackOnFault(t *testing.T) {
	p := NewPipeline()
	p.Filter = func(texts []string) ([]string, error) {
		return nil, errors.New("filter blew up")
	}
	display := p.ApplyFilter([]Match{{Text: "/a/b/c.txt"}})
	if len(display) != 1 || display[0] != "c.txt" {
		t.Fatalf("display = %v, want [c.txt]", display)
	}
}

func TestApplyFilterFallsBackOnLengthMismatch(t *testing.T) {
	p := NewPipeline()
	p.Filter = func(texts []string) ([]string, error) {
		return []string{"only-one"}, nil
	}
	display := p.ApplyFilter([]Match{{Text: "a"}, {Text: "b"}})
	if len(display) != 2 {
		t.Fatalf("display = %v, want length 2 (fallback)", display)
	}
}

func TestNeedsQuotingDetectsSpace(t *testing.T) {
	p := NewPipeline()
	set := NewSet()
	set.Add(Match{Text: "my file.txt"}, false)
	p.postProcess(set, "cmd ")
	if set.LCD == "" || set.LCD[0] != '"' {
		t.Fatalf("LCD = %q, want leading quote", set.LCD)
	}
}

func TestDirectoryMatchGetsSeparatorTranslated(t *testing.T) {
	p := NewPipeline()
	set := NewSet()
	set.Add(Match{Text: `sub\dir`, Meta: Meta{IsDirectory: true}}, false)
	p.postProcess(set, "cd ")
	got := set.Matches()[0].Text
	if got == `sub\dir` {
		t.Skip("platform separator already matches source form")
	}
	if want := "sub" + string(filepath.Separator) + "dir"; got != want {
		t.Fatalf("Text = %q, want %q", got, want)
	}
}
