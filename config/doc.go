// Package config 提供 echosys 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env / 环境变量 的顺序加载，
// 环境变量使用 ECHOSYS_ 前缀，例如 ECHOSYS_ANALYSIS_LOG_WINDOW=90s。
package config
