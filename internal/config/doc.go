// Package config 提供发布任务图生成器的配置管理功能。
// 支持从 YAML 文件、环境变量和命令行参数加载配置，
// 优先级顺序为：默认值 < YAML 文件 < 环境变量 < 命令行参数。
// 触发参数（Parameters）使用相同的环境变量机制加载。
package config
