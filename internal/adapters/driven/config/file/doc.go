// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the ragbot config directory (~/.ragbot).
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: user-editable prompt templates
package file
