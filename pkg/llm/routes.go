package llm

// Provider identifiers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
)

// ModelRoute maps a client-facing model key to a provider and its API model
// name, with the credit cost and premium gating for that key.
type ModelRoute struct {
	Provider string
	APIModel string
	Cost     int
	Premium  bool
}

// DefaultModelKey is used when the client omits the model or names an
// unknown key. Unknown keys never produce an error.
const DefaultModelKey = "gemini-flash"

// modelRoutes is the static routing table. Costs default to 1; heavier
// models charge more and are premium-gated.
var modelRoutes = map[string]ModelRoute{
	"gemini-flash":    {Provider: ProviderGemini, APIModel: "gemini-2.0-flash", Cost: 1},
	"gemini-pro":      {Provider: ProviderGemini, APIModel: "gemini-2.5-pro", Cost: 3, Premium: true},
	"gpt-4o-mini":     {Provider: ProviderOpenAI, APIModel: "gpt-4o-mini", Cost: 1},
	"gpt-4o":          {Provider: ProviderOpenAI, APIModel: "gpt-4o", Cost: 3, Premium: true},
	"claude-haiku":    {Provider: ProviderAnthropic, APIModel: "claude-3-5-haiku-latest", Cost: 1},
	"claude-sonnet":   {Provider: ProviderAnthropic, APIModel: "claude-sonnet-4-20250514", Cost: 3, Premium: true},
	"sonar":           {Provider: ProviderPerplexity, APIModel: "sonar", Cost: 2},
	"sonar-reasoning": {Provider: ProviderPerplexity, APIModel: "sonar-reasoning", Cost: 4, Premium: true},
}

// ResolveModel returns the route for a model key, falling back to the
// default route for empty or unrecognized keys.
func ResolveModel(key string) ModelRoute {
	if route, ok := modelRoutes[key]; ok {
		return route
	}
	return modelRoutes[DefaultModelKey]
}

// KnownModelKeys returns all routable model keys.
func KnownModelKeys() []string {
	keys := make([]string, 0, len(modelRoutes))
	for k := range modelRoutes {
		keys = append(keys, k)
	}
	return keys
}
