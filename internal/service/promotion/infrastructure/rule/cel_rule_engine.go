// internal/service/promotion/infrastructure/rule/cel_rule_engine.go
package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"campusnexus/internal/service/promotion/domain"
)

// CELRuleEngine 是 domain.RuleEngine 接口基于 cel-go 的实现。
// 规则表达式可以引用 record 和 event 两个 map 变量，结果必须是布尔值。
type CELRuleEngine struct {
	env      *cel.Env
	programs sync.Map // 表达式 -> cel.Program，编译结果可被并发复用
}

// NewCELRuleEngine 创建规则引擎并声明可用的变量。
func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cel environment")
	}
	return &CELRuleEngine{env: env}, nil
}

// Compile 预编译表达式，表达式有语法错误或结果不是布尔值时返回错误。
func (e *CELRuleEngine) Compile(ruleDefinition string) error {
	_, err := e.program(ruleDefinition)
	return err
}

// Evaluate 实现了 domain.RuleEngine 接口。
func (e *CELRuleEngine) Evaluate(ruleDefinition string, fact domain.Fact) (bool, error) {
	prg, err := e.program(ruleDefinition)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any(fact))
	if err != nil {
		return false, errors.Wrapf(err, "failed to evaluate rule %q", ruleDefinition)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Wrapf(domain.ErrInvalidRule, "rule %q returned %T, want bool", ruleDefinition, out.Value())
	}
	return result, nil
}

func (e *CELRuleEngine) program(expr string) (cel.Program, error) {
	if cached, ok := e.programs.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(domain.ErrInvalidRule, "failed to compile rule %q: %v", expr, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Wrapf(domain.ErrInvalidRule, "rule %q has result type %s, want bool", expr, out)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build program for rule %q", expr)
	}

	actual, _ := e.programs.LoadOrStore(expr, prg)
	return actual.(cel.Program), nil
}
