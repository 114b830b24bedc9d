// Package id generates prefixed public identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	PrefixExperience = "exp"
	PrefixUser       = "usr"
	PrefixComment    = "cmt"
	PrefixSession    = "ses"
	PrefixToken      = "tok"
)

// Generate returns prefix-<nanoid>, e.g. "exp-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate panics when the system has no entropy. Use only at startup or in tests.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
