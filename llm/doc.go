// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供 RCA 分析使用的大语言模型接入层。

# 概述

上层只依赖 [Provider] 接口的 Completion 调用；具体协议由
providers/openaicompat 实现，任何兼容 OpenAI Chat Completions 的服务
都可以通过 BaseURL 接入。

# 弹性

[ResilientProvider] 在 Provider 外层叠加三层保护：

  - 单次调用超时（分析流程中唯一的超时边界）
  - retry 子包的指数退避重试，仅针对 Retryable 错误
  - circuitbreaker 子包的熔断，客户端错误（鉴权、参数）不计入失败

# 错误

所有上游错误统一为 [*Error]，携带 [ErrorCode]、HTTP 状态与可重试标记。
*/
package llm
