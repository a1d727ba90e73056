// Package telemetry 初始化 echosys 的 OpenTelemetry TracerProvider 与 MeterProvider。
// 未启用时只注册 W3C 传播器，不连接任何外部服务。
package telemetry
