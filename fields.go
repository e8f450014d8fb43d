// Package checkout 重定向支付结账相关功能
package checkout

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields 调用方提供的松散类型输入记录（字段名 -> 值）
type Fields map[string]interface{}

// has 判断字段是否存在且非空
func (f Fields) has(key string) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String 读取必填字符串字段
func (f Fields) String(key string) (string, error) {
	if !f.has(key) {
		return "", malformed(key, "field is required")
	}
	return f.OptionalString(key)
}

// OptionalString 读取可选字符串字段，不存在时返回空字符串
func (f Fields) OptionalString(key string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", nil
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	case int, int32, int64:
		return fmt.Sprintf("%d", x), nil
	default:
		return "", malformed(key, "expected a string, got %T", v)
	}
}

// Int 读取必填整数字段
// 字符串形式的整数也可接受，小数部分非零时报错
func (f Fields) Int(key string) (int64, error) {
	if !f.has(key) {
		return 0, malformed(key, "field is required")
	}
	switch x := f[key].(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, malformed(key, "expected an integer, got %v", x)
		}
		return int64(x), nil
	case json.Number:
		return parseIntField(key, x.String())
	case string:
		return parseIntField(key, x)
	default:
		return 0, malformed(key, "expected an integer, got %T", x)
	}
}

func parseIntField(key, s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, malformed(key, "expected an integer, got %q", s)
	}
	return n, nil
}

// Money 读取必填金额字段
func (f Fields) Money(key string, cur Currency) (Money, error) {
	if !f.has(key) {
		return 0, malformed(key, "field is required")
	}
	m, err := ParseMoney(f[key], cur)
	if err != nil {
		return 0, malformed(key, "amount %v", err)
	}
	return m, nil
}

// Currency 读取可选的货币字段
// 字段存在时必须与 expected 一致，不允许静默覆盖
func (f Fields) Currency(key string, expected Currency) (Currency, error) {
	if !f.has(key) {
		return expected, nil
	}
	code, err := f.OptionalString(key)
	if err != nil {
		return Currency{}, err
	}
	cur, err := ParseCurrency(code)
	if err != nil {
		e := err.(*Error)
		e.Field = key
		return Currency{}, e
	}
	if cur.Code() != expected.Code() {
		return Currency{}, malformed(key, "currency %s does not match %s", cur.Code(), expected.Code())
	}
	return cur, nil
}

// Sub 读取嵌套记录字段
func (f Fields) Sub(key string) (Fields, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case Fields:
		return x, nil
	case map[string]interface{}:
		return Fields(x), nil
	default:
		return nil, malformed(key, "expected a record, got %T", v)
	}
}
