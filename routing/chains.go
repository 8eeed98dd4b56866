package routing

// Fallback chains are ordered, statically-defined data so that chain order
// is independently testable and swappable per deployment. Entries must
// exist in the provider registry.

// FreeChain lists free or generously free-tier models, cheapest-to-run
// first. Tried with the user's key, then the platform key, per entry.
var FreeChain = []ChainEntry{
	{Provider: "zai", Model: "glm-4.5-flash"},
	{Provider: "openrouter", Model: "deepseek/deepseek-chat-v3:free"},
	{Provider: "siliconflow", Model: "Qwen/Qwen2.5-7B-Instruct"},
	{Provider: "openrouter", Model: "meta-llama/llama-3.3-70b-instruct:free"},
}

// PaidChain lists paid models ordered by price-for-capability.
var PaidChain = []ChainEntry{
	{Provider: "deepseek", Model: "deepseek-chat"},
	{Provider: "zai", Model: "glm-4.7"},
	{Provider: "siliconflow", Model: "deepseek-ai/DeepSeek-V3"},
	{Provider: "openai", Model: "gpt-5-mini"},
	{Provider: "anthropic", Model: "claude-sonnet-4-5"},
}

// PerformanceChain lists the highest-capability models first, used by
// max_performance mode.
var PerformanceChain = []ChainEntry{
	{Provider: "anthropic", Model: "claude-opus-4-1"},
	{Provider: "openai", Model: "gpt-5.2"},
	{Provider: "anthropic", Model: "claude-sonnet-4-5"},
	{Provider: "deepseek", Model: "deepseek-reasoner"},
	{Provider: "zai", Model: "glm-4.7"},
}
