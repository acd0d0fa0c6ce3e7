// Package openai implements the ai package interfaces against
// OpenAI-compatible APIs.
//
// Both the embedder and the boundary detector speak the OpenAI wire format,
// which covers hosted OpenAI as well as local servers such as Ollama,
// LocalAI and vLLM. Authentication uses a placeholder token by default,
// which local servers ignore.
//
// The boundary detector requests strict JSON output and repairs the common
// formatting mistakes small local models make before parsing. Responses
// that still fail to parse after three attempts surface as errors; the
// chunking layer falls back to deterministic splitting in that case.
package openai
