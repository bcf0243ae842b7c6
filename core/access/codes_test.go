package access

import (
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode() failed: %v", err)
		}
		if len(code) != codeLen {
			t.Fatalf("len(%q) = %d; expected %d", code, len(code), codeLen)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeCharset, r) {
				t.Fatalf("code %q contains %q outside charset", code, r)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 90 {
		t.Errorf("only %d distinct codes out of 100", len(seen))
	}
}
