package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// VerifyIntegrity checks the locked config files against .checksums.
// A missing manifest is a warning; a missing or mismatched hash is an error.
func VerifyIntegrity(configDir string) (*IntegrityResult, error) {
	result := &IntegrityResult{Passed: true}

	checksumPath := filepath.Join(configDir, checksumFile)
	if !fileExists(checksumPath) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s manifest found at %s; run 'azkit config lock' to enable integrity verification", checksumFile, checksumPath))
		return result, nil
	}

	manifest, err := LoadChecksums(configDir)
	if err != nil {
		return nil, err
	}

	for _, name := range LockedFiles {
		path := filepath.Join(configDir, name)
		expectedHash, inManifest := manifest.Hashes[name]

		if _, err := os.Stat(path); os.IsNotExist(err) {
			if inManifest {
				result.Passed = false
				result.Errors = append(result.Errors, fmt.Sprintf("file %s is in %s but missing from disk", name, checksumFile))
			}
			continue
		}

		if !inManifest {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("file %s not in %s manifest", name, checksumFile))
			continue
		}

		actualHash, err := ComputeBlake3Hash(path)
		if err != nil {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("failed to hash %s: %v", name, err))
			continue
		}

		if actualHash != expectedHash {
			result.Passed = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("hash mismatch for %s (expected %s, got %s)", name, expectedHash, actualHash))
		}
	}

	for name := range manifest.Hashes {
		if !isLocked(name) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s lists unknown file %s", checksumFile, name))
		}
	}

	return result, nil
}

func isLocked(name string) bool {
	for _, f := range LockedFiles {
		if f == name {
			return true
		}
	}
	return false
}
