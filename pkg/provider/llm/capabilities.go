package llm

import "strings"

// capabilityRule matches a lower-cased model name by prefix.
type capabilityRule struct {
	prefix string
	caps   ModelCapabilities
}

// capabilityRules is searched in order, so longer prefixes come first.
var capabilityRules = []capabilityRule{
	{"gpt-4.1", ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768}},
	{"gpt-4o", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"gpt-4-turbo", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}},
	{"gpt-4", ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{"gpt-3.5-turbo", ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}},
	{"o1-mini", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
	{"o1", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"o3", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"o4", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"claude-3-opus", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}},
	{"claude-3", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
	{"claude", ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 32_000}},
	{"gemini-1.5-pro", ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192}},
	{"gemini", ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"mistral-large", ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192}},
	{"deepseek", ModelCapabilities{ContextWindow: 64_000, MaxOutputTokens: 8_192}},
}

// DefaultCapabilities is assumed for models [LookupCapabilities] does not know.
var DefaultCapabilities = ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}

// LookupCapabilities returns the published limits of a hosted model family,
// matched case-insensitively by name prefix, or [DefaultCapabilities].
func LookupCapabilities(model string) ModelCapabilities {
	lower := strings.ToLower(model)
	for _, r := range capabilityRules {
		if strings.HasPrefix(lower, r.prefix) {
			return r.caps
		}
	}
	return DefaultCapabilities
}
