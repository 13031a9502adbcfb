// Package shoprec 是电商推荐核心：订单数据抽取、Apriori 关联规则挖掘、
// "经常一起购买" 查询，以及内容 + 协同的混合推荐与快照缓存。
//
// 设计要点：
//   - Pipeline-first: 混合推荐由 Node 串联（Recall → Rank → Filter → ReRank），可用 YAML 重新编排
//   - Labels-first: 召回来源、融合权重、过滤原因以 label 全链路透传
//   - 每次推荐调用独立加载数据，不共享可变状态
//
// 入口：
//   - engine: 对外操作（MineRules / RelatedProducts / HybridRecommendations / RefreshRecommendations / Export）
//   - cmd/shoprec: 命令行与 serve 模式
//   - scheduler: 周期导出、挖掘与刷新
package shoprec
