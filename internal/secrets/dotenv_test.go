package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func readEnvFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestSetEntry_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".env")

	if err := SetEntry(path, "API_KEY", "secret123"); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	if got := readEnvFile(t, path); got != "API_KEY=secret123\n" {
		t.Errorf("unexpected content %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}
}

func TestSetEntry_ReplacesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	initial := "# comment\nFOO=bar\nexport BAZ=qux\n\nLAST=1\n"
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := SetEntry(path, "BAZ", "updated"); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}

	want := "# comment\nFOO=bar\nBAZ=updated\n\nLAST=1\n"
	if got := readEnvFile(t, path); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestSetEntry_AppendsNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("EXISTING=value"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := SetEntry(path, "NEW_KEY", "new_value"); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	if got := readEnvFile(t, path); got != "EXISTING=value\nNEW_KEY=new_value\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestQuoteValue(t *testing.T) {
	tests := map[string]string{
		"plain":             "plain",
		"value with spaces": `"value with spaces"`,
		`say "hi"`:          `"say \"hi\""`,
		`C:\tmp`:            `"C:\\tmp"`,
		"ENC[age:abc+/=]":   "ENC[age:abc+/=]",
	}
	for in, want := range tests {
		if got := quoteValue(in); got != want {
			t.Errorf("quoteValue(%q) = %q, want %q", in, got, want)
		}
	}
}
