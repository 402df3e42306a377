package configs

import "embed"

// PromptDefaults contains the shipped default prompt templates used when a
// camp has no stored supervisor or agent prompt on disk.
//
//go:embed prompts/*.md
var PromptDefaults embed.FS
