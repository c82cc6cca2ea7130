/*
Package prompt renders prompt templates from graph state.

Templates reference state fields with ${name}:

	tpl := prompt.MustParse("Answer the question: ${input}")
	text, err := tpl.RenderState(s)

Strings are inserted as-is. Numbers and booleans use their default
formatting. Anything else (lists, maps, structs) is JSON encoded so a model
sees structured values the way they were stored.

# Missing Variables

By default a placeholder with no value is left in place. Use
WithMissingAction to drop it (MissingEmpty) or fail (MissingError).

Templates are immutable after Parse and safe for concurrent use.
*/
package prompt
