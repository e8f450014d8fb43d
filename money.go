// Package checkout 重定向支付结账相关功能
package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency ISO 4217 货币
// 同时记录该货币的最小单位精度（小数位数）
type Currency struct {
	code  string // 货币代码，例如 "USD"
	scale int    // 最小单位的小数位数，例如 USD 为 2，JPY 为 0
}

// ParseCurrency 解析并校验货币代码
// 参数:
//   - code: 货币代码，例如 "USD"
//
// 返回:
//   - Currency: 货币
//   - error: 代码为空或不是合法的 ISO 4217 代码时返回 MalformedInput
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Currency{}, malformed("currency", "currency code is required")
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{}, malformed("currency", "unknown currency code %q", code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{code: unit.String(), scale: scale}, nil
}

// MustCurrency 与 ParseCurrency 相同，解析失败时 panic
func MustCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code 返回货币代码
func (c Currency) Code() string { return c.code }

// Scale 返回最小单位的小数位数
func (c Currency) Scale() int { return c.scale }

// IsZero 判断货币是否未设置
func (c Currency) IsZero() bool { return c.code == "" }

func (c Currency) String() string { return c.code }

// Money 以最小货币单位表示的定点金额（例如美分）
// 避免浮点数累计误差
type Money int64

var (
	errNegative  = errors.New("must be non-negative")
	errPrecision = errors.New("has more decimal places than the currency allows")
	errNotNumber = errors.New("is not a decimal number")
	errOverflow  = errors.New("is too large")
)

// ParseMoney 将调用方提供的金额解析为定点金额
// 支持 string、json.Number、整数、float64 和 Money
// 参数:
//   - v: 金额值
//   - cur: 货币，决定允许的小数位数
//
// 返回:
//   - Money: 以最小单位表示的金额
//   - error: 负数、非数字或精度超过货币最小单位时返回错误
func ParseMoney(v interface{}, cur Currency) (Money, error) {
	switch x := v.(type) {
	case Money:
		if x < 0 {
			return 0, errNegative
		}
		return x, nil
	case string:
		return parseDecimal(x, cur.scale)
	case json.Number:
		return parseDecimal(x.String(), cur.scale)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, errNotNumber
		}
		return fromDecimal(decimal.NewFromFloat(x), cur.scale)
	case float32:
		return ParseMoney(float64(x), cur)
	case int:
		return fromUnits(int64(x), cur.scale)
	case int32:
		return fromUnits(int64(x), cur.scale)
	case int64:
		return fromUnits(x, cur.scale)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, errOverflow
		}
		return fromUnits(int64(x), cur.scale)
	case nil:
		return 0, errNotNumber
	default:
		return 0, fmt.Errorf("has unsupported type %T", v)
	}
}

// 金额的表示范围
var (
	maxMoney = decimal.NewFromInt(math.MaxInt64)
	minMoney = decimal.NewFromInt(math.MinInt64)
)

func fromUnits(units int64, scale int) (Money, error) {
	if units < 0 {
		return 0, errNegative
	}
	return fromDecimal(decimal.NewFromInt(units), scale)
}

func parseDecimal(s string, scale int) (Money, error) {
	s = strings.TrimSpace(s)
	// 只接受普通小数写法，不接受科学计数法
	if s == "" || strings.ContainsAny(s, "eE") {
		return 0, errNotNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errNotNumber
	}
	return fromDecimal(d, scale)
}

// fromDecimal 将十进制金额换算为最小单位
// 超出最小单位的位数只允许为零，不做静默舍入
func fromDecimal(d decimal.Decimal, scale int) (Money, error) {
	if d.IsNegative() {
		return 0, errNegative
	}
	if !d.Equal(d.Truncate(int32(scale))) {
		return 0, errPrecision
	}
	return toMoney(d.Shift(int32(scale)))
}

func toMoney(units decimal.Decimal) (Money, error) {
	if units.GreaterThan(maxMoney) || units.LessThan(minMoney) {
		return 0, errOverflow
	}
	return Money(units.IntPart()), nil
}

// sumMoney 精确求和，结果超出 int64 时返回 errOverflow
func sumMoney(parts ...Money) (Money, error) {
	return toMoney(sumDecimal(parts...))
}

func sumDecimal(parts ...Money) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(decimal.NewFromInt(int64(p)))
	}
	return sum
}

// Add 返回两个金额之和
// 参数:
//   - o: 另一个金额
//
// 返回:
//   - Money: 和
//   - error: 超出表示范围时返回错误
func (m Money) Add(o Money) (Money, error) { return sumMoney(m, o) }

// Mul 返回金额乘以数量，超出表示范围时返回错误
func (m Money) Mul(n int64) (Money, error) {
	return toMoney(decimal.NewFromInt(int64(m)).Mul(decimal.NewFromInt(n)))
}

// Format 按货币精度格式化金额，例如 "93.00"
func (m Money) Format(cur Currency) string {
	return formatUnits(decimal.NewFromInt(int64(m)), cur)
}

func formatUnits(units decimal.Decimal, cur Currency) string {
	return units.Shift(-int32(cur.scale)).StringFixed(int32(cur.scale))
}

// Minor 返回以最小单位表示的整数值
func (m Money) Minor() int64 { return int64(m) }
