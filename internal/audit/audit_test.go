package audit

import "testing"

func TestSanitiseKey_SecretRedacted(t *testing.T) {
	t.Parallel()

	if got := SanitiseKey("QDRANT_API_KEY", "super-secret"); got != "set" {
		t.Errorf("secret value leaked: got %q, want %q", got, "set")
	}
	if got := SanitiseKey("QDRANT_API_KEY", ""); got != "unset" {
		t.Errorf("empty secret: got %q, want %q", got, "unset")
	}
}

func TestSanitiseKey_PlainValuePassedThrough(t *testing.T) {
	t.Parallel()

	if got := SanitiseKey("QDRANT_HOST", "qdrant.internal"); got != "qdrant.internal" {
		t.Errorf("plain value: got %q", got)
	}
	if got := SanitiseKey("QDRANT_HOST", ""); got != "unset" {
		t.Errorf("empty plain value: got %q, want %q", got, "unset")
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()

	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("empty path: got %q, want %q", got, "none")
	}
	if got := sanitiseConfigPath("/etc/fsnbmatch/config.yaml"); got != "/etc/fsnbmatch/config.yaml" {
		t.Errorf("absolute path rewritten: got %q", got)
	}
}
