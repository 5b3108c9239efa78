package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func useTempDB(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_DSN", filepath.Join(dir, "callscreen.db"))
	t.Setenv("RECORDING_DIR", filepath.Join(dir, "recordings"))
	t.Setenv("CACHE_DIR", "")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "callscreen dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"serve", "prompts", "classify", "contacts", "artifacts", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q", sub)
		}
	}
}

func TestContactsAddListRemove(t *testing.T) {
	useTempDB(t)

	if out, err := run(t, "contacts", "add", "(555) 123-4567", "Jane", "Doe"); err != nil {
		t.Fatalf("add: %v (%s)", err, out)
	}
	out, err := run(t, "contacts", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Jane Doe") {
		t.Fatalf("list output = %q", out)
	}
	number := strings.Fields(out)[0]

	if _, err := run(t, "contacts", "remove", number); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, err = run(t, "contacts", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Fatalf("contacts left after remove: %q", out)
	}
}

func TestContactsAddRejectsInvalidNumber(t *testing.T) {
	useTempDB(t)
	if _, err := run(t, "contacts", "add", "not-a-number"); err == nil {
		t.Fatal("expected error for invalid number")
	}
}

func TestClassifyWithoutKeyFallsBack(t *testing.T) {
	useTempDB(t)
	t.Setenv("GEMINI_API_KEY", "")

	out, err := run(t, "classify", "+15551234567", "--history", "5")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out, "not spam") || !strings.Contains(out, "fallback") {
		t.Fatalf("classify output = %q", out)
	}
	if !strings.Contains(out, "history (0)") {
		t.Fatalf("fallback result was stored: %q", out)
	}
}

func TestArtifactsSweepEmpty(t *testing.T) {
	useTempDB(t)
	out, err := run(t, "artifacts", "sweep", "--older-than", "1h")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "removed 0 recordings") {
		t.Fatalf("sweep output = %q", out)
	}
}

func TestPromptsRenderNeedsSynthesis(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("PROMPT_DIR", t.TempDir())
	if _, err := run(t, "prompts", "render"); err == nil {
		t.Fatal("expected error without a synthesis provider")
	}
}
