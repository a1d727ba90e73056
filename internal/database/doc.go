// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接管理，支持健康检查、
连接数指标上报与事务重试。

# 概述

Open 按配置中的驱动（postgres、mysql、sqlite）构造 GORM 连接，
PoolManager 在其上统一管理连接池参数与生命周期。后台健康检查
定时探活，并把打开与空闲连接数写入 metrics.Collector。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，可由 PoolConfigFrom 从 config.DatabaseConfig 构造。
  - TransactionFunc：事务回调函数类型。

# 事务

WithTransaction 在单个事务中执行回调，回调出错时整体回滚；
WithTransactionRetry 在死锁、序列化失败、连接中断等瞬时错误时
以指数退避重试整个事务。评估结果持久化与测试结果写入都走这条路径。
*/
package database
