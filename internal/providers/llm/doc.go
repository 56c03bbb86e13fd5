/*
Package llm is the provider abstraction: one Provider interface over the
Gemini, Azure OpenAI and Anthropic SDKs.

Every variant shares the same shell: a per-call timeout, a circuit breaker, a
retryablehttp transport that retries once on 429, 5xx and connection errors,
failure classification into ProviderUnavailable or ProviderRejected, and
markdown fence stripping on the way out. Variants differ only in transport,
auth and response shape.

New is the single selection point. A provider whose credentials are missing
is replaced by Disabled, which fails every call and reports unconfigured.
*/
package llm
