package domain

// Fact 是交给规则引擎评估的事实数据，键对应规则表达式中的变量名。
type Fact map[string]any

// RuleEngine 定义了分类启发式规则的评估接口。
// 规则定义是一段表达式字符串，返回布尔结果。
type RuleEngine interface {
	Compile(ruleDefinition string) error
	Evaluate(ruleDefinition string, fact Fact) (bool, error)
}
