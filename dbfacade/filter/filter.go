// Package filter compiles the Database Facade's backend-agnostic filter
// semantics (spec §4.4: dotted paths, scalar/list/operator values, ANDed
// across keys) once, into a reusable predicate evaluated with cel-go. Every
// adapter family that supports metadata filters (vector and
// document) shares this package instead of reimplementing comparison
// logic per backend.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/tekton-fabric/core/errs"
)

const component = "dbfacade.filter"

var recognizedOperators = map[string]string{
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
	"ne":  "!=",
	"in":  "in",
	"nin": "nin",
}

var (
	envOnce sync.Once
	sharedEnv *cel.Env
	envErr    error
)

func predicateEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		sharedEnv, envErr = cel.NewEnv(
			cel.Variable("values", cel.DynType),
			cel.Variable("params", cel.DynType),
		)
	})
	return sharedEnv, envErr
}

// Predicate is a compiled filter ready to evaluate against a candidate's
// metadata map. A nil-conditions Predicate (from Compile(nil) or
// Compile({})) matches everything.
type Predicate struct {
	program cel.Program
	paths   map[string]string // param name -> dotted metadata path
	params  map[string]any    // param name -> comparison operand(s)
}

// Compile builds a Predicate from a filter map as described in spec §4.4:
// each key is a dotted path into the candidate's metadata; each value is
// either a scalar (exact match), a list (any-of), or a single-key operator
// object ({gt,gte,lt,lte,ne,in,nin}). Conditions are ANDed.
func Compile(conditions map[string]any) (*Predicate, error) {
	if len(conditions) == 0 {
		return &Predicate{}, nil
	}

	env, err := predicateEnv()
	if err != nil {
		return nil, errs.New(component, "compile", errs.Internal, "build cel environment").WithCause(err)
	}

	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	paths := make(map[string]string, len(keys))
	params := make(map[string]any, len(keys))
	exprs := make([]string, 0, len(keys))

	for i, path := range keys {
		paramName := fmt.Sprintf("p%d", i)
		expr, operand, err := buildCondition(paramName, conditions[path])
		if err != nil {
			return nil, errs.New(component, "compile", errs.InvalidArgument, "invalid filter condition for "+path).WithCause(err)
		}
		paths[paramName] = path
		params[paramName] = operand
		exprs = append(exprs, expr)
	}

	ast, issues := env.Compile(strings.Join(exprs, " && "))
	if issues != nil && issues.Err() != nil {
		return nil, errs.New(component, "compile", errs.Internal, "compile predicate expression").WithCause(issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errs.New(component, "compile", errs.Internal, "build cel program").WithCause(err)
	}

	return &Predicate{program: program, paths: paths, params: params}, nil
}

func buildCondition(paramName string, value any) (string, any, error) {
	if m, ok := value.(map[string]any); ok && len(m) == 1 {
		for opKey, opVal := range m {
			celOp, ok := recognizedOperators[opKey]
			if !ok {
				return "", nil, fmt.Errorf("unrecognized operator %q", opKey)
			}
			guard := fmt.Sprintf("values[%q] != null", paramName)
			switch opKey {
			case "nin":
				return fmt.Sprintf("%s && !(values[%q] in params[%q])", guard, paramName, paramName), opVal, nil
			default:
				return fmt.Sprintf("%s && values[%q] %s params[%q]", guard, paramName, celOp, paramName), opVal, nil
			}
		}
	}

	if list, ok := value.([]any); ok {
		guard := fmt.Sprintf("values[%q] != null", paramName)
		return fmt.Sprintf("%s && values[%q] in params[%q]", guard, paramName, paramName), list, nil
	}

	guard := fmt.Sprintf("values[%q] != null", paramName)
	return fmt.Sprintf("%s && values[%q] == params[%q]", guard, paramName, paramName), value, nil
}

// Match reports whether metadata satisfies every compiled condition.
func (p *Predicate) Match(metadata map[string]any) (bool, error) {
	if p.program == nil {
		return true, nil
	}

	values := make(map[string]any, len(p.paths))
	for paramName, path := range p.paths {
		values[paramName] = resolvePath(metadata, path)
	}

	out, _, err := p.program.Eval(map[string]any{"values": values, "params": p.params})
	if err != nil {
		return false, errs.New(component, "match", errs.Internal, "evaluate predicate").WithCause(err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errs.New(component, "match", errs.Internal, "predicate did not evaluate to a boolean")
	}
	return matched, nil
}

// resolvePath walks dotted path segments through nested map[string]any
// values, returning nil if any segment is absent or not itself a map.
func resolvePath(metadata map[string]any, path string) any {
	var current any = metadata
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}
