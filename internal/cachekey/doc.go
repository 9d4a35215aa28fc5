// Package cachekey derives deterministic store keys from business
// identity. Every key is namespaced by role so originals, batch files,
// and compressed artifacts can never collide inside the shared blob
// store, and no key ever embeds the wall clock: re-deriving a key for
// the same identity and payload descriptor always yields the same
// string.
package cachekey
