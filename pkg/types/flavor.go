// Package types holds the data model shared across the gateway's public API:
// flavors, templates, session state, and the result shapes returned to callers.
package types

import (
	"fmt"
	"strings"
)

// Flavor is the closed set of sandbox resource tiers. Each maps to a fixed
// (memory, cpu) pair; the mapping is not configurable.
type Flavor string

const (
	FlavorSmall  Flavor = "small"
	FlavorMedium Flavor = "medium"
	FlavorLarge  Flavor = "large"
)

type flavorSpec struct {
	memoryMB int
	cpus     float64
}

var flavorSpecs = map[Flavor]flavorSpec{
	FlavorSmall:  {memoryMB: 1024, cpus: 1.0},
	FlavorMedium: {memoryMB: 2048, cpus: 2.0},
	FlavorLarge:  {memoryMB: 4096, cpus: 4.0},
}

// MemoryMB returns the fixed memory allocation for the flavor in megabytes.
func (f Flavor) MemoryMB() int {
	return flavorSpecs[f].memoryMB
}

// CPUs returns the fixed vCPU allocation for the flavor.
func (f Flavor) CPUs() float64 {
	return flavorSpecs[f].cpus
}

// Valid reports whether f is one of the recognized flavors.
func (f Flavor) Valid() bool {
	_, ok := flavorSpecs[f]
	return ok
}

// ParseFlavor normalizes and validates a flavor string.
func ParseFlavor(s string) (Flavor, error) {
	f := Flavor(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unrecognized flavor %q: valid options are small, medium, large", s)
	}
	return f, nil
}
