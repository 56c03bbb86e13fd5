/*
Package prompt turns a PageModel into a provider request that fits the
provider's input token budget.

The system instructions and budgets live in the embedded prompts.toml. Each
provider gets the model in the format it handles best (JSON for Azure OpenAI,
YAML for Gemini, an XML-tagged outline for Anthropic); all three carry the same
structural facts.

When the prompt is over budget the model is reduced in fixed order until it
fits: deepest container levels are collapsed into "N items" placeholders,
then every text is capped, then trailing top-level blocks are dropped behind
a single "N items omitted" placeholder. Building is deterministic.
*/
package prompt
