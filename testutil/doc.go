// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 echosys 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 日志: TestLogger 返回写入测试输出的 zaptest Logger
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON / WaitFor / WaitForChannel

# 子包

  - testutil/mocks: MockProvider（llm.Provider）与内存 TraceStore，
    支持 Builder 模式、错误注入与调用记录
  - testutil/fixtures: 测试数据工厂，提供 TraceRecord / RawTrace 构造器、
    ChatResponse 与 RCA 报告样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)
	resp, err := provider.Completion(ctx, req)
*/
package testutil
