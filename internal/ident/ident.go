// Package ident generates human-readable reference numbers.
package ident

import (
	"strings"

	"github.com/google/uuid"
)

const suffixLen = 12

// New returns prefix-XXXXXXXXXXXX where the suffix is 12 upper-case hex
// characters (48 random bits) taken from a version 4 UUID.
func New(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	// The version nibble sits at index 12, just past the suffix.
	return prefix + "-" + strings.ToUpper(hex[:suffixLen])
}

// ApplicationNo returns a new membership application number.
func ApplicationNo() string { return New("APP") }

// LoanNo returns a new loan number.
func LoanNo() string { return New("LN") }
