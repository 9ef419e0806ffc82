// Copyright 2025 The Tideflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package template

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// filterEnv returns the map of filter functions made available to every
// compiled expression, usable either as ordinary calls (upper(x)) or
// via expr-lang's pipe syntax (x | upper).
func filterEnv() map[string]any {
	return map[string]any{
		"default":      filterDefault,
		"lower":        filterLower,
		"upper":        filterUpper,
		"title":        filterTitle,
		"trim":         filterTrim,
		"replace":      filterReplace,
		"length":       filterLength,
		"first":        filterFirst,
		"last":         filterLast,
		"join":         filterJoin,
		"int":          filterInt,
		"float":        filterFloat,
		"string":       filterString,
		"round":        filterRound,
		"abs":          filterAbs,
		"tojson_utf8":  filterTojsonUTF8,
		"fromjson":     filterFromJSON,
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// filterDefault returns args[0] unless it is nil or empty, in which
// case it returns args[1].
func filterDefault(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("default requires exactly 2 arguments, got %d", len(args))
	}
	if isEmpty(args[0]) {
		return args[1], nil
	}
	return args[0], nil
}

func toStringArg(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func filterLower(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("lower requires exactly 1 argument, got %d", len(args))
	}
	return strings.ToLower(toStringArg(args[0])), nil
}

func filterUpper(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("upper requires exactly 1 argument, got %d", len(args))
	}
	return strings.ToUpper(toStringArg(args[0])), nil
}

func filterTitle(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("title requires exactly 1 argument, got %d", len(args))
	}
	s := toStringArg(args[0])
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
			for j := 1; j < len(r); j++ {
				r[j] = unicode.ToLower(r[j])
			}
		}
		words[i] = string(r)
	}
	return strings.Join(words, " "), nil
}

func filterTrim(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("trim requires exactly 1 argument, got %d", len(args))
	}
	return strings.TrimSpace(toStringArg(args[0])), nil
}

func filterReplace(args ...any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("replace requires exactly 3 arguments, got %d", len(args))
	}
	s := toStringArg(args[0])
	old := toStringArg(args[1])
	new := toStringArg(args[2])
	return strings.ReplaceAll(s, old, new), nil
}

func filterLength(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return 0, nil
	}
	v := reflect.ValueOf(args[0])
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", args[0])
	}
}

func filterFirst(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("first requires exactly 1 argument, got %d", len(args))
	}
	v := reflect.ValueOf(args[0])
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return nil, nil
		}
		return v.Index(0).Interface(), nil
	case reflect.String:
		s := args[0].(string)
		if s == "" {
			return "", nil
		}
		r := []rune(s)
		return string(r[0]), nil
	default:
		return nil, fmt.Errorf("first: unsupported type %T", args[0])
	}
}

func filterLast(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("last requires exactly 1 argument, got %d", len(args))
	}
	v := reflect.ValueOf(args[0])
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return nil, nil
		}
		return v.Index(v.Len() - 1).Interface(), nil
	case reflect.String:
		s := args[0].(string)
		if s == "" {
			return "", nil
		}
		r := []rune(s)
		return string(r[len(r)-1]), nil
	default:
		return nil, fmt.Errorf("last: unsupported type %T", args[0])
	}
}

func filterJoin(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("join requires exactly 2 arguments, got %d", len(args))
	}
	sep := toStringArg(args[1])
	v := reflect.ValueOf(args[0])
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("join: first argument must be a sequence, got %T", args[0])
	}
	parts := make([]string, v.Len())
	for i := 0; i < v.Len(); i++ {
		parts[i] = toStringArg(v.Index(i).Interface())
	}
	return strings.Join(parts, sep), nil
}

func filterInt(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int requires exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				return nil, fmt.Errorf("int: cannot convert %q", v)
			}
			return int(f), nil
		}
		return n, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("int: cannot convert %T", args[0])
	}
}

func filterFloat(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("float requires exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("float: cannot convert %q", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("float: cannot convert %T", args[0])
	}
}

func filterString(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("string requires exactly 1 argument, got %d", len(args))
	}
	return toStringArg(args[0]), nil
}

func filterRound(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("round requires 1 or 2 arguments, got %d", len(args))
	}
	f, err := toFloat(args[0])
	if err != nil {
		return nil, fmt.Errorf("round: %w", err)
	}
	precision := 0
	if len(args) == 2 {
		p, err := toFloat(args[1])
		if err != nil {
			return nil, fmt.Errorf("round: %w", err)
		}
		precision = int(p)
	}
	mult := math.Pow(10, float64(precision))
	return math.Round(f*mult) / mult, nil
}

func filterAbs(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs requires exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	default:
		return nil, fmt.Errorf("abs: unsupported type %T", args[0])
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
