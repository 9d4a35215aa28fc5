// Package main hosts the squeeze CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into
// compression-service calls and local cache operations: staging and
// uploading media, polling task status, downloading results (cache-first),
// previewing cached payloads, cache maintenance, environment checks, and
// configuration scaffolding. It centralizes configuration resolution,
// session wiring, and logger setup so subcommands can focus on user
// experience instead of plumbing.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
