// Package registry 提供按名称索引的实现注册表。
//
// Registry 是显式构造、可重置的对象，由调用方注入到需要它的组件中；
// worker 与 tool provider 在启动阶段通过 Installer 列表完成注册，
// 同名注册以最后一次为准。
package registry
