// Package checkout 重定向支付结账相关功能
package checkout

import "fmt"

// LineItem 订单行项目
// 构建后不可修改
type LineItem struct {
	name        string   // 商品名称
	sku         string   // 商品编号，可选
	description string   // 商品描述，可选
	currency    Currency // 货币
	quantity    int64    // 数量，正整数
	unitPrice   Money    // 单价，非负
}

// NewLineItem 由调用方的商品记录构建行项目
// 参数:
//   - f: 商品记录，字段 name、quantity、price 必填，currency、sku、description 可选
//   - cur: 结账配置的货币，记录中显式给出的货币必须与之一致
//
// 返回:
//   - LineItem: 行项目
//   - error: 字段缺失或非法时返回 MalformedInput
func NewLineItem(f Fields, cur Currency) (LineItem, error) {
	name, err := f.String("name")
	if err != nil {
		return LineItem{}, err
	}
	quantity, err := f.Int("quantity")
	if err != nil {
		return LineItem{}, err
	}
	if quantity <= 0 {
		return LineItem{}, malformed("quantity", "quantity must be a positive integer, got %d", quantity)
	}
	itemCur, err := f.Currency("currency", cur)
	if err != nil {
		return LineItem{}, err
	}
	price, err := f.Money("price", itemCur)
	if err != nil {
		return LineItem{}, err
	}
	if _, err := price.Mul(quantity); err != nil {
		return LineItem{}, malformed("price", "price %s x quantity %d %v", price.Format(itemCur), quantity, err)
	}
	sku, err := f.OptionalString("sku")
	if err != nil {
		return LineItem{}, err
	}
	description, err := f.OptionalString("description")
	if err != nil {
		return LineItem{}, err
	}
	return LineItem{
		name:        name,
		sku:         sku,
		description: description,
		currency:    itemCur,
		quantity:    quantity,
		unitPrice:   price,
	}, nil
}

func (i LineItem) Name() string        { return i.name }
func (i LineItem) SKU() string         { return i.sku }
func (i LineItem) Description() string { return i.description }
func (i LineItem) Currency() Currency  { return i.currency }
func (i LineItem) Quantity() int64     { return i.quantity }
func (i LineItem) UnitPrice() Money    { return i.unitPrice }

// Total 返回单价乘以数量，构建时已校验不会溢出
func (i LineItem) Total() Money { return i.unitPrice * Money(i.quantity) }

// ItemCollection 有序的行项目集合，顺序即展示顺序
type ItemCollection struct {
	items    []LineItem
	subtotal Money
}

// NewItemCollection 由多条商品记录构建行项目集合
// 出错时在字段名前加上记录下标，例如 items[1].price
func NewItemCollection(records []Fields, cur Currency) (ItemCollection, error) {
	items := make([]LineItem, 0, len(records))
	var subtotal Money
	for idx, r := range records {
		item, err := NewLineItem(r, cur)
		if err != nil {
			if e, ok := err.(*Error); ok {
				e.Field = fmt.Sprintf("items[%d].%s", idx, e.Field)
			}
			return ItemCollection{}, err
		}
		if subtotal, err = subtotal.Add(item.Total()); err != nil {
			return ItemCollection{}, malformed(fmt.Sprintf("items[%d].price", idx), "items subtotal %v", err)
		}
		items = append(items, item)
	}
	return ItemCollection{items: items, subtotal: subtotal}, nil
}

// Items 返回行项目副本
func (c ItemCollection) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len 返回行项目数量
func (c ItemCollection) Len() int { return len(c.items) }

// Subtotal 返回所有行项目金额之和
func (c ItemCollection) Subtotal() Money { return c.subtotal }
