// Package textutil provides text processing utilities for store-key tokens,
// filename sanitization, and display titles.
//
// The primary use cases are:
//   - Normalizing user-supplied file names into deterministic store-key tokens
//   - Sanitizing filenames for safe filesystem use when writing downloads
//   - Deriving human-friendly display titles from file paths
package textutil
