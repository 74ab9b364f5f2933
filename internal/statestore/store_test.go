package statestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDerivedURL(t *testing.T) {
	got := DerivedURL("dbx_abc123", "runloop.dev", 8000)
	want := "https://dbx_abc123.runloop.dev:8000"
	if got != want {
		t.Errorf("DerivedURL() = %q, want %q", got, want)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		role   string
		suffix string
		want   string
	}{
		{"backend", "DEVBOX_ID", "BACKEND_DEVBOX_ID"},
		{"qwen-ollama", "DEVBOX_URL", "QWEN_OLLAMA_DEVBOX_URL"},
		{"omni.agent", "BLUEPRINT_ID", "OMNI_AGENT_BLUEPRINT_ID"},
		{"Backend", "DEVBOX_ID", "BACKEND_DEVBOX_ID"},
	}

	for _, tt := range tests {
		if got := envKey(tt.role, tt.suffix); got != tt.want {
			t.Errorf("envKey(%q, %q) = %q, want %q", tt.role, tt.suffix, got, tt.want)
		}
	}
}

func TestEnvFileStore_RoundTrip(t *testing.T) {
	store := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))

	if err := store.Set("backend", "dbx_roundtrip_1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get("backend")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "dbx_roundtrip_1" {
		t.Errorf("Get() = %q, want dbx_roundtrip_1", got)
	}
}

func TestEnvFileStore_MissingRole(t *testing.T) {
	store := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))

	got, err := store.Get("never-saved")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
}

func TestEnvFileStore_UpdateInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	seed := "# provider credentials\nRUNLOOP_API_KEY=secret\nBACKEND_DEVBOX_ID=dbx_old\nOTHER=untouched\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewEnvFileStore(path)
	if err := store.Set("backend", "dbx_new"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.Contains(content, "BACKEND_DEVBOX_ID=dbx_new") {
		t.Errorf("key not updated:\n%s", content)
	}
	if strings.Contains(content, "dbx_old") {
		t.Errorf("old value still present:\n%s", content)
	}
	if !strings.Contains(content, "# provider credentials") {
		t.Errorf("comment line lost:\n%s", content)
	}
	if !strings.Contains(content, "RUNLOOP_API_KEY=secret") || !strings.Contains(content, "OTHER=untouched") {
		t.Errorf("unrelated lines lost:\n%s", content)
	}
	if n := strings.Count(content, "BACKEND_DEVBOX_ID="); n != 1 {
		t.Errorf("key appears %d times, want 1", n)
	}
}

func TestEnvFileStore_AppendWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RUNLOOP_API_KEY=secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewEnvFileStore(path)
	if err := store.SetURL("backend", "https://dbx_1.runloop.dev:8000"); err != nil {
		t.Fatalf("SetURL() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "BACKEND_DEVBOX_URL=https://dbx_1.runloop.dev:8000") {
		t.Errorf("URL not appended:\n%s", data)
	}
	if !strings.HasPrefix(string(data), "RUNLOOP_API_KEY=secret") {
		t.Errorf("existing content not preserved:\n%s", data)
	}
}

func TestEnvFileStore_RepeatedUpdatesDoNotGrowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	store := NewEnvFileStore(path)

	for i := 0; i < 5; i++ {
		if err := store.Set("backend", "dbx_same"); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "\n"); got != 1 {
		t.Errorf("file has %d lines after 5 identical updates, want 1:\n%q", got, data)
	}
}

func TestEnvFileStore_QuotedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	seed := "BACKEND_DEVBOX_ID=\"dbx_quoted\"\nBACKEND_DEVBOX_URL='https://x.runloop.dev:8000'\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewEnvFileStore(path)
	id, err := store.Get("backend")
	if err != nil {
		t.Fatal(err)
	}
	if id != "dbx_quoted" {
		t.Errorf("Get() = %q, want dbx_quoted", id)
	}
	url, _ := store.GetURL("backend")
	if url != "https://x.runloop.dev:8000" {
		t.Errorf("GetURL() = %q", url)
	}
}

func TestEnvFileStore_BlueprintPointer(t *testing.T) {
	store := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))

	if err := store.SetBlueprintID("backend", "bpt_1"); err != nil {
		t.Fatalf("SetBlueprintID() error = %v", err)
	}
	got, err := store.GetBlueprintID("backend")
	if err != nil {
		t.Fatal(err)
	}
	if got != "bpt_1" {
		t.Errorf("GetBlueprintID() = %q, want bpt_1", got)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	if got, _ := store.Get("backend"); got != "" {
		t.Errorf("Get() on empty store = %q", got)
	}

	store.Set("backend", "dbx_1")
	store.SetURL("backend", "https://dbx_1.runloop.dev:8000")
	store.SetBlueprintID("backend", "bpt_1")
	store.Set("general", "dbx_2")

	if got, _ := store.Get("backend"); got != "dbx_1" {
		t.Errorf("Get(backend) = %q", got)
	}
	if got, _ := store.GetURL("backend"); got != "https://dbx_1.runloop.dev:8000" {
		t.Errorf("GetURL(backend) = %q", got)
	}
	if got, _ := store.GetBlueprintID("backend"); got != "bpt_1" {
		t.Errorf("GetBlueprintID(backend) = %q", got)
	}
	if got, _ := store.Get("general"); got != "dbx_2" {
		t.Errorf("Get(general) = %q", got)
	}
}

var (
	_ Store = (*EnvFileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
