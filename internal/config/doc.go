// Package config loads, normalizes, and validates squeeze's TOML
// configuration.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/squeeze/config.toml, then a project-local squeeze.toml. Missing
// files are not an error; defaults apply and Load reports whether a file was
// found so commands can hint at 'squeeze config init'.
//
// The cache capacity budget is deliberately absent: it is a fixed constant in
// the capacity package, not an operator knob.
package config
