package inject

import "testing"

func TestCheckVersionMatch(t *testing.T) {
	v := Version{1, 2, 3}
	if err := CheckVersion(v, v); err != nil {
		t.Fatalf("identical versions should match: %v", err)
	}
}

func TestCheckVersionEveryFieldMismatchDetected(t *testing.T) {
	base := Version{1, 2, 3}
	cases := []Version{
		{9, 2, 3},
		{1, 9, 3},
		{1, 2, 9},
	}
	for _, c := range cases {
		if err := CheckVersion(base, c); err == nil {
			t.Errorf("expected mismatch for %s vs %s", base, c)
		}
	}
}

func TestVersionString(t *testing.T) {
	if got := (Version{1, 2, 3}).String(); got != "1.2.3" {
		t.Errorf("String() = %q", got)
	}
}
