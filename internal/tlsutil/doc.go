// Package tlsutil 集中管理出站连接的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 供 Redis、Kafka 与 LLM HTTP 客户端使用。
package tlsutil
