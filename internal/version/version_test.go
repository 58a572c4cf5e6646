package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("version is empty")
	}
	if strings.TrimSpace(v) != v {
		t.Errorf("version %q carries whitespace", v)
	}
	if !strings.HasPrefix(Long(), "reqflow "+v+" (") {
		t.Errorf("Long() = %q", Long())
	}
}
