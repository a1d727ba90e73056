// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 echosys HTTP API 的请求处理器。

# 核心类型

  - TraceHandler      — trace 写入与按用户列出
  - AnalysisHandler   — 触发分析流程与根因分析
  - EvaluationHandler — 单次/批量评估与指标标准配置
  - TestHandler       — 测试执行、批量执行与定时测试
  - IncidentHandler   — 事件列表与详情（含 RCA 明细）
  - SignalHub         — AI 信号的 WebSocket 推送
  - HealthHandler     — 存活、就绪与版本信息

所有处理器通过 WriteSuccess / WriteError 输出统一的 Response 结构，
types.Error 的错误码由 HTTPStatus 映射为 HTTP 状态码。
*/
package handlers
