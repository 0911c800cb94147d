package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestVerifyIntegrityAllValid(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "config.yaml"), "log_level: info\n")
	if _, err := GenerateChecksums(tmpDir, LockedFiles, false); err != nil {
		t.Fatal(err)
	}

	result, err := VerifyIntegrity(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Passed {
		t.Errorf("expected Passed=true, got errors: %v", result.Errors)
	}
	if len(result.Warnings) > 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestVerifyIntegrityMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "config.yaml"), "log_level: info\n")
	if _, err := GenerateChecksums(tmpDir, LockedFiles, false); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, filepath.Join(tmpDir, "config.yaml"), "log_level: debug\n")

	result, err := VerifyIntegrity(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed {
		t.Fatal("expected Passed=false for tampered config.yaml")
	}
	if !strings.Contains(result.Errors[0], "hash mismatch") {
		t.Errorf("error should mention hash mismatch, got: %s", result.Errors[0])
	}
}

func TestVerifyIntegrityNoManifestWarns(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "config.yaml"), "log_level: info\n")

	result, err := VerifyIntegrity(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Passed {
		t.Fatal("missing manifest should pass with a warning")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning about missing manifest")
	}
}

func TestVerifyIntegrityUnlistedAndUnknownFiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "config.yaml"), "log_level: info\n")
	writeTestFile(t, filepath.Join(tmpDir, ".checksums"), "version: 1\nhashes:\n  other.yaml: abc\n")

	result, err := VerifyIntegrity(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed {
		t.Fatal("config.yaml missing from manifest should fail")
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "other.yaml") {
		t.Errorf("expected warning about other.yaml, got %v", result.Warnings)
	}
}
