// Package hierarchical 提供基于 Supervisor-Worker 模式的层次化 Agent 编排。
//
// 本包实现了监督者-工作者层级结构，由监督者 Agent 负责任务分解与分配，
// 工作者 Agent 负责具体执行，支持动态任务委派与结果聚合。
package hierarchical
