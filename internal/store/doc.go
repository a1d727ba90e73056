/*
包 store 提供 echosys 的持久化层，基于 GORM 实现 trace、评估结果、
测试结果、事故与定时测试的读写。

# 概述

Store 持有 database.PoolManager，所有写操作都在事务中执行：
SaveBatch 把一批评估结果写成 trace 注解与一条指标汇总，
任一步失败整体回滚；测试执行通过 InTx 在同一事务里写入
TestResult、Incident 与 RCADetail。

# 约束

  - trace 的原始 content 只在 CreateTrace 时写入，之后只合并
    analysis_results 注解，不覆盖已有键以外的内容。
  - List 按 created_at、id 升序返回，满足窗口化归约对输入顺序的要求。
*/
package store
