package chat

// ResponseLength selects how expansive the model's answers should be. The
// value comes from the per-message request and maps onto a fixed set of
// system prompt variants.
type ResponseLength string

const (
	ResponseConcise  ResponseLength = "concise"
	ResponseBalanced ResponseLength = "balanced"
	ResponseDetailed ResponseLength = "detailed"
)

const basePrompt = `You are a helpful assistant. When tools are available, use them to ground
your answers in real data instead of guessing. Cite tool results when you rely on them.`

var lengthDirectives = map[ResponseLength]string{
	ResponseConcise:  "Keep answers brief. Prefer one short paragraph or a compact list. Skip preamble and caveats unless essential.",
	ResponseBalanced: "Give complete but focused answers. Use a few paragraphs or a short list as the content warrants.",
	ResponseDetailed: "Give thorough answers. Explain reasoning, cover relevant context and edge cases, and structure longer responses with headings or lists.",
}

// SystemPrompt returns the prompt variant for the given response length.
// Unknown values fall back to the balanced variant.
func SystemPrompt(length ResponseLength) string {
	directive, ok := lengthDirectives[length]
	if !ok {
		directive = lengthDirectives[ResponseBalanced]
	}
	return basePrompt + "\n\n" + directive
}
