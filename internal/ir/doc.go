// Package ir provides the plain data model shared by the cepsnap packages.
//
// This package contains rule-base definitions, session configuration and the
// canonical JSON encoder used for snapshot sections and fingerprints. All
// other internal packages may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - instants and durations are int64 milliseconds
//   - All JSON tags use snake_case
//   - Canonical output never contains null; optional fields use omitempty
package ir
