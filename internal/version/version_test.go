package version

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	old := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = old })

	if got := UserAgent("cairos-cli"); got != "cairos-cli/1.2.3" {
		t.Fatalf("UserAgent = %q", got)
	}
	if s := String("cairos"); !strings.HasPrefix(s, "cairos 1.2.3 (commit=") {
		t.Fatalf("String = %q", s)
	}
}
