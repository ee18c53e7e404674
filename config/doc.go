// Package config 提供 taskforce 的配置管理：默认值、YAML 文件、
// TASKFORCE_ 前缀环境变量三层加载，以及配置文件变更的 fsnotify 监听重载（不可用时轮询）。
package config
