// Package file provides file-backed adapters for configuration.
//
// Adapters:
//   - ConfigStore: TOML configuration at ~/.triage/config.toml
//   - PromptStore: user-editable prompt templates in ~/.triage/prompts
package file
