// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 echosys 的数据库 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

迁移文件按方言内嵌在 migrations/<dialect>/ 下，三种方言的版本号
与名称保持一致。当前 Schema 包含 traces、metric_summaries、
test_results、incidents、rca_details 与 test_schedules，
列定义与 internal/store 的模型一一对应。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、
    Version、Status、Info 等操作，日志通过 zap 输出。
  - CLI：`echosys migrate` 子命令的终端输出，状态列使用 fatih/color 着色。
  - NewMigratorFromConfig：从应用配置创建迁移器。
*/
package migration
