// Package openaicompat 实现 OpenAI Chat Completions 协议的 Provider。
//
// OpenAI、DeepSeek、Qwen、本地 vLLM / Ollama 等兼容服务都可以通过
// BaseURL 与模型名接入：
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.LLM.APIKey,
//	    BaseURL:      cfg.LLM.BaseURL,
//	    DefaultModel: cfg.LLM.Model,
//	}, logger)
package openaicompat
