package history

import "testing"

func sampleEntries() []Entry {
	return []Entry{
		{ID: 1, Line: "git status"},
		{ID: 2, Line: "git commit -m wip"},
		{ID: 3, Line: "echo hello"},
	}
}

func TestExpandBangBang(t *testing.T) {
	got, err := Expand("!!", sampleEntries(), ExpandOn)
	if err != nil {
		t.Fatal(err)
	}
	if got != "echo hello" {
		t.Errorf("Expand(!!) = %q, want %q", got, "echo hello")
	}
}

func TestExpandAbsoluteReference(t *testing.T) {
	got, err := Expand("!1", sampleEntries(), ExpandOn)
	if err != nil {
		t.Fatal(err)
	}
	if got != "git status" {
		t.Errorf("Expand(!1) = %q, want %q", got, "git status")
	}
}

func TestExpandRelativeReference(t *testing.T) {
	got, err := Expand("!-2", sampleEntries(), ExpandOn)
	if err != nil {
		t.Fatal(err)
	}
	if got != "git commit -m wip" {
		t.Errorf("Expand(!-2) = %q, want %q", got, "git commit -m wip")
	}
}

func TestExpandPrefixReference(t *testing.T) {
	got, err := Expand("!git", sampleEntries(), ExpandOn)
	if err != nil {
		t.Fatal(err)
	}
	if got != "git commit -m wip" {
		t.Errorf("Expand(!git) = %q, want most recent matching entry", got)
	}
}

func TestExpandNoMatchReturnsError(t *testing.T) {
	_, err := Expand("!nope", sampleEntries(), ExpandOn)
	if err == nil {
		t.Fatal("expected error for unmatched prefix")
	}
}

func TestExpandOffLeavesLineUnchanged(t *testing.T) {
	got, err := Expand("!!", sampleEntries(), ExpandOff)
	if err != nil {
		t.Fatal(err)
	}
	if got != "!!" {
		t.Errorf("Expand with ExpandOff = %q, want unchanged input", got)
	}
}

func TestExpandNotInSingleQuotesSkipsQuotedBang(t *testing.T) {
	got, err := Expand(`echo '!!'`, sampleEntries(), ExpandNotInSingleQuotes)
	if err != nil {
		t.Fatal(err)
	}
	if got != `echo '!!'` {
		t.Errorf("Expand = %q, want bang left inert inside single quotes", got)
	}
}

func TestExpandNotInAnyQuotesLeavesDoubleQuotedBangAlone(t *testing.T) {
	got, err := Expand(`echo "!!"`, sampleEntries(), ExpandNotInAnyQuotes)
	if err != nil {
		t.Fatal(err)
	}
	if got != `echo "!!"` {
		t.Errorf("Expand = %q, want bang left inert inside double quotes", got)
	}
}
