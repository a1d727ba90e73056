// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、分析流水线、
评估、RCA/LLM、测试执行、缓存与数据库。

# 概述

Collector 通过 promauto 注册全部向量指标，按 namespace 隔离。
测试中使用 NewCollectorWithRegisterer 传入独立的 Registry。
Record 系列方法对 nil Collector 安全。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 流水线指标：进入分析的 trace、被跳过的畸形 trace、压缩前后数量、AI 信号数量、
    单次分析耗时。
  - 评估指标：按 metric/outcome 计数与分数分布。
  - RCA 与 LLM：RCA 结果计数与耗时，LLM 请求数、耗时与 token 用量。
  - 缓存与数据库：命中/未命中计数，连接数 Gauge。
*/
package metrics
