// Package id generates the prefixed identifiers of sessions, jobs and SSE clients.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Identifier prefixes.
const (
	PrefixSession = "ms"
	PrefixJob     = "job"
	PrefixClient  = "client"
)

// shortAlphabet avoids '-' and '_' so short IDs stay readable in logs.
const shortAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "ms-V1StGXR8_Z5jdHi6B-myT")
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Short creates a prefixed 10-character lowercase ID for short-lived
// objects such as SSE connections.
func Short(prefix string) (string, error) {
	id, err := gonanoid.Generate(shortAlphabet, 10)
	if err != nil {
		return "", fmt.Errorf("generate short nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}
