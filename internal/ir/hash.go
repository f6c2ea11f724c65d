package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "rxfn/snapshot/v1"
	DomainApp      = "rxfn/app/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash computes the content hash of a function instance snapshot.
// Stored next to each snapshot and verified before restore.
func StateHash(instanceKey string, state IRObject) (string, error) {
	obj := IRObject{
		"instance": IRString(instanceKey),
		"state":    state,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainSnapshot, canonical), nil
}

// AppHash computes a stable identity for a compiled application.
// Revisions are scoped to it, so a changed application never restores
// snapshots taken for a different set of queries.
func AppHash(app *App) (string, error) {
	canonical, err := MarshalCanonical(app.toIR())
	if err != nil {
		return "", fmt.Errorf("AppHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainApp, canonical), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(instanceKey string, state IRObject) string {
	h, err := StateHash(instanceKey, state)
	if err != nil {
		panic(err)
	}
	return h
}
