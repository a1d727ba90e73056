// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存与分布式锁。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Get/Set/Delete 与
    GetJSON/SetJSON，RCA 报告按 "rca:"+sha256(payload) 缓存。
  - Config：地址、密码、连接池、默认 TTL、TLS 与健康检查间隔。

# 分布式锁

Manager.Acquire 使用 SET NX PX 获取带过期时间的锁，值为随机 token，
释放时通过 Lua 脚本比较 token 后删除。同一用户的分析过程以
"analysis:<user>" 为键互斥，锁被占用时返回 types.ErrAnalysisInFlight。

# 错误语义

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
