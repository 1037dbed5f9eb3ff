// Package defaults provides embedded default assets (config, prompt
// templates and the model artifact manifest).
package defaults

import _ "embed"

//go:embed default_config.json
var DefaultConfigJSON []byte

//go:embed ask_prompt.md
var AskPrompt string

//go:embed fix_prompt.md
var FixPrompt string

//go:embed extract_prompt.md
var ExtractPrompt string

//go:embed models.toml
var ModelManifestTOML []byte
