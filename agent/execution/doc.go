// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 execution 提供测试执行智能体：按测试配置评估一次交互，
失败时触发根因分析并生成事故记录。

# 概述

Agent.ExecuteTest 校验测试配置后，以 expected_behavior 作为标准答案
评估 instruction 与 model_output。所有指标通过即测试通过；否则执行
一次数据摄取分析，把归约后的数据连同测试上下文交给 RCA，
再在同一个事务中写入 TestResult、Incident 与 RCADetail。
RCA 失败或没有返回报告时不落库，结果状态为 error。

# 核心类型

  - TestConfig：测试配置，test_name、instruction、agent、environment、
    expected_behavior 为必填项。
  - TestOutcome：单个测试结果，状态为 passed、failed 或 error。
  - Agent：测试执行智能体，ExecuteBatch 以有界并发执行一批测试，
    结果顺序与输入一致。
  - Scheduler：轮询到期的定时测试，认领后交给 Agent 执行。
*/
package execution
