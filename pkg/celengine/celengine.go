package celengine

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

// Engine compiles expressions once against a fixed variable environment and caches the programs.
type Engine struct {
	env      *cel.Env
	programs sync.Map
}

// NewEngine declares one variable per attribute, typed after the sample value.
func NewEngine(sample map[string]any) (*Engine, error) {
	env, err := BuildCelEnvFromAttributes(sample)
	if err != nil {
		return nil, err
	}
	return &Engine{env: env}, nil
}

func BuildCelEnvFromAttributes(attrs map[string]any) (*cel.Env, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	variables := make([]cel.EnvOption, 0, len(keys))
	for _, key := range keys {
		variables = append(variables, cel.Variable(key, typeOf(key, attrs[key])))
	}

	return cel.NewEnv(variables...)
}

func typeOf(key string, val any) *cel.Type {
	switch v := val.(type) {
	case string:
		return cel.StringType
	case int, int32, int64:
		return cel.IntType
	case float32, float64:
		return cel.DoubleType
	case bool:
		return cel.BoolType
	case []string:
		return cel.ListType(cel.StringType)
	case []any:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]any); ok {
				return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
			}
		}
		return cel.ListType(cel.DynType)
	case map[string]any:
		return cel.MapType(cel.StringType, cel.DynType)
	default:
		zap.L().Debug("unhandled cel attribute type", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", val)))
		return cel.DynType
	}
}

// Compile returns the cached program for expr, compiling it on first use.
func (e *Engine) Compile(expr string) (cel.Program, error) {
	if v, ok := e.programs.Load(expr); ok {
		return v.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	actual, _ := e.programs.LoadOrStore(expr, prg)
	return actual.(cel.Program), nil
}

func (e *Engine) Validate(expr string) error {
	_, err := e.Compile(expr)
	return err
}

func (e *Engine) Evaluate(expr string, attrs map[string]any) (bool, error) {
	prg, err := e.Compile(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", expr, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func StructToMap(s any) map[string]any {
	if s == nil {
		return map[string]any{}
	}

	b, err := json.Marshal(s)
	if err != nil {
		zap.L().Debug("failed StructToMap Marshal", zap.Error(err))
		return map[string]any{}
	}

	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		zap.L().Debug("failed StructToMap Unmarshal", zap.Error(err))
		return map[string]any{}
	}

	return result
}
