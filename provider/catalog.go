package provider

import "regexp"

// Built-in catalog. Prices are credits per 1M tokens and track the public
// price sheets loosely; they only need to preserve relative ordering for
// the fallback chains.
func defaultProviders() []*ProviderSpec {
	return []*ProviderSpec{
		{
			ID:          "openrouter",
			DisplayName: "OpenRouter",
			BaseURL:     "https://openrouter.ai/api/v1",
			KeyPrefix:   "sk-or-",
			keyPattern:  regexp.MustCompile(`^sk-or-[A-Za-z0-9\-_]{20,}$`),
			Models: []ModelSpec{
				{ID: "deepseek/deepseek-chat-v3:free", DisplayName: "DeepSeek V3 (free)", Free: true, ContextWindow: 64000},
				{ID: "meta-llama/llama-3.3-70b-instruct:free", DisplayName: "Llama 3.3 70B (free)", Free: true, ContextWindow: 128000},
				{ID: "anthropic/claude-sonnet-4", DisplayName: "Claude Sonnet 4", InputPer1M: 300, OutputPer1M: 1500, ContextWindow: 200000},
			},
		},
		{
			ID:          "deepseek",
			DisplayName: "DeepSeek",
			BaseURL:     "https://api.deepseek.com",
			KeyPrefix:   "sk-",
			keyPattern:  regexp.MustCompile(`^sk-[a-f0-9]{32}$`),
			Models: []ModelSpec{
				{ID: "deepseek-chat", DisplayName: "DeepSeek Chat", InputPer1M: 27, OutputPer1M: 110, ContextWindow: 64000},
				{ID: "deepseek-reasoner", DisplayName: "DeepSeek Reasoner", InputPer1M: 55, OutputPer1M: 219, ContextWindow: 64000},
			},
		},
		{
			ID:          "zai",
			DisplayName: "Z.AI",
			BaseURL:     "https://open.bigmodel.cn/api/paas/v4",
			KeyPrefix:   "",
			keyPattern:  regexp.MustCompile(`^[a-f0-9]{32}\.[A-Za-z0-9]{16}$`),
			Models: []ModelSpec{
				{ID: "glm-4.5-flash", DisplayName: "GLM-4.5 Flash", Free: true, ContextWindow: 128000},
				{ID: "glm-4.7", DisplayName: "GLM-4.7", InputPer1M: 60, OutputPer1M: 220, ContextWindow: 128000},
			},
		},
		{
			ID:          "siliconflow",
			DisplayName: "SiliconFlow",
			BaseURL:     "https://api.siliconflow.cn/v1",
			KeyPrefix:   "sk-",
			keyPattern:  regexp.MustCompile(`^sk-[a-z]{40,}$`),
			Models: []ModelSpec{
				{ID: "Qwen/Qwen2.5-7B-Instruct", DisplayName: "Qwen2.5 7B", Free: true, ContextWindow: 32000},
				{ID: "deepseek-ai/DeepSeek-V3", DisplayName: "DeepSeek V3", InputPer1M: 100, OutputPer1M: 200, ContextWindow: 64000},
			},
		},
		{
			ID:          "openai",
			DisplayName: "OpenAI",
			BaseURL:     "https://api.openai.com/v1",
			KeyPrefix:   "sk-",
			keyPattern:  regexp.MustCompile(`^sk-(proj-)?[A-Za-z0-9\-_]{20,}$`),
			Models: []ModelSpec{
				{ID: "gpt-5.2", DisplayName: "GPT-5.2", InputPer1M: 1250, OutputPer1M: 10000, ContextWindow: 400000, PremiumInputPer1M: 2500, PremiumOutputPer1M: 20000},
				{ID: "gpt-5-mini", DisplayName: "GPT-5 Mini", InputPer1M: 250, OutputPer1M: 2000, ContextWindow: 400000, PremiumInputPer1M: 500, PremiumOutputPer1M: 4000},
			},
		},
		{
			ID:          "anthropic",
			DisplayName: "Anthropic",
			BaseURL:     "https://api.anthropic.com/v1",
			KeyPrefix:   "sk-ant-",
			keyPattern:  regexp.MustCompile(`^sk-ant-[A-Za-z0-9\-_]{20,}$`),
			Models: []ModelSpec{
				{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", InputPer1M: 300, OutputPer1M: 1500, ContextWindow: 200000, PremiumInputPer1M: 600, PremiumOutputPer1M: 2250},
				{ID: "claude-opus-4-1", DisplayName: "Claude Opus 4.1", InputPer1M: 1500, OutputPer1M: 7500, ContextWindow: 200000},
			},
		},
		{
			ID:          "ollama",
			DisplayName: "Ollama (local)",
			BaseURL:     "http://localhost:11434/v1",
			KeyPrefix:   "",
			Models: []ModelSpec{
				{ID: "qwen2.5:3b", DisplayName: "Qwen2.5 3B", Free: true, ContextWindow: 32000},
				{ID: "qwen2.5:0.5b", DisplayName: "Qwen2.5 0.5B", Free: true, ContextWindow: 32000},
			},
		},
	}
}
