// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 echosys 服务端程序入口。

# 概述

cmd/echosys 启动 AI agent 可观测后端：trace 写入、数据压缩与信号检测、
指标评估、根因分析以及测试执行。子命令包括 serve、migrate、health、version。

# 组件装配

NewServer 按依赖顺序初始化：指标与遥测 → 数据库连接池与 store →
Redis（可选，不可用时降级）→ ingestion / evaluation / rca / execution →
定时测试与 Kafka 消费（按配置启用）→ HTTP 路由。

# 中间件

Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、
MetricsMiddleware、CORS、认证（JWT 或 X-API-Key）、RateLimiter（按用户或 IP）。
JWT 中的 user_id claim 会写入 context，处理器据此限定可见数据。

# 运行

Run 使用 errgroup 同时运行 API 服务、Metrics 服务（/metrics）、
定时测试和 Kafka 消费；收到 SIGINT/SIGTERM 后优雅关闭并释放资源。
Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
