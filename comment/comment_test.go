package comment

import (
	"encoding/json"
	"testing"
)

func TestNewFillsLegacyMirrors(t *testing.T) {
	ev := New("manual", "", "u1", "alice", "hello", []byte(`{"x":1}`))
	if ev.Platform != "unknown" {
		t.Errorf("platform = %q, want unknown", ev.Platform)
	}
	if ev.Text != ev.Message || ev.User != ev.UserName {
		t.Errorf("legacy mirrors not populated: %+v", ev)
	}
	if string(ev.Raw) != `{"x":1}` {
		t.Errorf("raw = %s, want original payload", ev.Raw)
	}
}

func TestNewPreservesNonJSONRaw(t *testing.T) {
	original := "plain text frame: not json"
	ev := New("onecomme_legacy", "", "", "", original, []byte(original))

	if !json.Valid(ev.Raw) {
		t.Fatalf("raw is not valid JSON: %s", ev.Raw)
	}
	var got string
	if err := json.Unmarshal(ev.Raw, &got); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if got != original {
		t.Errorf("raw round trip = %q, want %q", got, original)
	}

	// The whole event still marshals to a valid document.
	if _, err := json.Marshal(ev); err != nil {
		t.Errorf("marshal event: %v", err)
	}
}
