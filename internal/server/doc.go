// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 echosys 的 HTTP 监听端口（API 与 /metrics 各一个）。

Manager 封装 net/http.Server：Start 非阻塞监听，Run 阻塞到 context
取消或服务异常后优雅关闭，Shutdown 在配置的超时内排空请求。
信号处理由调用方通过 signal.NotifyContext 完成。
*/
package server
