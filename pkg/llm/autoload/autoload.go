// Package autoload registers all built-in LLM providers.
package autoload

import (
	_ "marketmate/pkg/llm/gemini"
	_ "marketmate/pkg/llm/ollama"
	_ "marketmate/pkg/llm/openailm"
)
