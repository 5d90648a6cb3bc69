package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveStringToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "registration.json")
	if err := SaveStringToFile(path, `{"ok":true}`); err != nil {
		t.Fatalf("SaveStringToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("content = %q", data)
	}
}

func TestSaveStringToFileEmptyPath(t *testing.T) {
	if err := SaveStringToFile("", "x"); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestJSONFileRoundTrip(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
		IDs  []int  `json:"ids"`
	}
	path := filepath.Join(t.TempDir(), "doc.json")

	in := doc{Name: "session", IDs: []int{3, 1, 4}}
	if err := WriteJSONFile(path, &in); err != nil {
		t.Fatalf("WriteJSONFile: %v", err)
	}

	var out doc
	if err := ReadJSONFile(path, &out); err != nil {
		t.Fatalf("ReadJSONFile: %v", err)
	}
	if out.Name != in.Name || len(out.IDs) != 3 || out.IDs[2] != 4 {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	// No temp files should survive the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "doc.json" {
			t.Errorf("leftover file %s", e.Name())
		}
	}
}

func TestReadJSONFileErrors(t *testing.T) {
	if err := ReadJSONFile(filepath.Join(t.TempDir(), "missing.json"), &struct{}{}); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ReadJSONFile(bad, &struct{}{}); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 443, "127.0.0.1:443"},
		{"amvp.example.com", 8443, "amvp.example.com:8443"},
		{"::1", 443, "[::1]:443"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
