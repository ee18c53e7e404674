// Package tools 提供工具提供者的分发层。
//
// 每个 Provider 在构造时给出一张显式的分发表（OperationTable），
// Dispatcher 按 "目标名 + 操作名 + JSON 参数" 解析并调用对应操作，
// 并保证任何错误或 panic 都被转换为 types.Result 错误，不会越过分发边界。
package tools
