// Package llm provides the completion function used by graph nodes.
//
// A Completer turns a prompt into text. The engine never calls a Completer
// itself; nodes do, and decide how to treat failures. Three implementations
// ship with the package:
//
//   - OpenAI talks to an OpenAI-compatible chat completion endpoint.
//   - Scripted replays canned replies in order, for tests and dry runs.
//   - Echo returns the prompt unchanged.
//
// Use New to build a Completer from config.LLMConfig.
package llm
