// Package llm provides the canonical, provider-neutral conversation model and
// the adapter contract that normalizes heterogeneous LLM vendors behind it.
//
// # Core Concepts
//
//  1. Messages: the Message type represents one conversation turn with a role
//     (user or model) and ordered Parts (text, function calls, function
//     responses). Tool responses are carried in role-user messages by
//     convention of the canonical format; adapters depend on that convention.
//
//  2. Adapters: the ProviderAdapter interface is implemented once per vendor.
//     StreamChat converts canonical history to the vendor wire format, streams
//     text deltas to the caller in arrival order, and assembles incremental
//     tool-call fragments into complete FunctionCalls at stream end.
//     GenerateOnce serves side-channel single-turn completions. BalanceReader
//     is an optional capability for vendors with credit introspection.
//
//  3. Descriptors and Registry: ProviderDescriptor/ModelDescriptor describe
//     selectable backends and their requests-per-minute budgets; the Registry
//     creates adapters by provider id so call sites never branch on vendor.
//
//  4. Errors: the Error type carries a provider-neutral category, the vendor
//     status code, and the original vendor error. Adapters propagate transport
//     failures unmodified inside it; user-facing classification is the host's
//     concern.
package llm
