package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatAmount 将最小单位金额格式化为带小数位的十进制字符串
//
// 例如 FormatAmount(2525, 2) == "25.25"
func FormatAmount(units int64, decimals uint32) string {
	return decimal.New(units, -int32(decimals)).StringFixed(int32(decimals))
}

// ParseAmount 将十进制字符串解析为最小单位金额
//
// 小数位超过 decimals 时返回错误，不做舍入。
func ParseAmount(s string, decimals uint32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}

	return scaled.IntPart(), nil
}
