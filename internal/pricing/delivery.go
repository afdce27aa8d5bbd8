package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DeliveryCalculator 两档运费：收货地址包含 City（忽略大小写）走 InsideFee，否则 OutsideFee。
type DeliveryCalculator struct {
	City       string
	InsideFee  decimal.Decimal
	OutsideFee decimal.Decimal
}

// Calculate 空购物车运费为 0。
func (d DeliveryCalculator) Calculate(address string, lineCount int) decimal.Decimal {
	if lineCount == 0 {
		return decimal.Zero
	}
	city := strings.ToLower(strings.TrimSpace(d.City))
	if city != "" && strings.Contains(strings.ToLower(address), city) {
		return d.InsideFee
	}
	return d.OutsideFee
}
