// Package checkout 重定向支付结账相关功能
package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PaymentMethod 付款方式
type PaymentMethod string

// 付款方式常量定义
const (
	MethodPaypal     PaymentMethod = "paypal"      // 钱包跳转，需要买家在网关页面确认
	MethodCreditCard PaymentMethod = "credit_card" // 银行卡直付
)

// Address 账单地址
type Address struct {
	Line1       string `json:"line1" validate:"required"`                         // 地址
	City        string `json:"city" validate:"required"`                          // 城市
	CountryCode string `json:"country_code" validate:"required,iso3166_1_alpha2"` // 国家代码
	PostalCode  string `json:"postal_code,omitempty"`                             // 邮编
	State       string `json:"state,omitempty"`                                   // 州/省
}

// Card 银行卡信息
type Card struct {
	Number         string   `json:"number" validate:"required,credit_card"`        // 卡号
	Type           string   `json:"type" validate:"required"`                      // 卡类型，例如 visa
	ExpireMonth    int      `json:"expire_month" validate:"required,min=1,max=12"` // 过期月份
	ExpireYear     int      `json:"expire_year" validate:"required,min=2000"`      // 过期年份
	Cvv2           string   `json:"cvv2,omitempty" validate:"omitempty,numeric,min=3,max=4"`
	FirstName      string   `json:"first_name" validate:"required"` // 名
	LastName       string   `json:"last_name" validate:"required"`  // 姓
	BillingAddress *Address `json:"billing_address,omitempty"`      // 账单地址
}

// PayerDescriptor 付款人描述
// 仅当付款方式需要时才携带银行卡信息
type PayerDescriptor struct {
	Method PaymentMethod // 付款方式
	Card   *Card         // 银行卡信息，仅 credit_card 方式
}

// NeedsApproval 判断该付款方式是否需要买家跳转确认
func (p PayerDescriptor) NeedsApproval() bool {
	return p.Method == MethodPaypal
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 使用 json 标签作为字段名，错误信息与输入记录的字段名一致
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError 将 validator 的错误转换为 MalformedInput
func validationError(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		if prefix != "" {
			field = prefix + "." + field
		}
		return malformed(field, "failed %q validation", fe.Tag())
	}
	return malformed(prefix, "%v", err)
}

// NewPayer 由调用方记录构建付款人描述
// 参数:
//   - f: 付款人记录，字段 method 必填；credit_card 方式需要 card 记录，card 中可带 billing_address 记录
//
// 返回:
//   - PayerDescriptor: 付款人描述
//   - error: 付款方式未知或银行卡信息非法时返回 MalformedInput
func NewPayer(f Fields) (PayerDescriptor, error) {
	method, err := f.String("method")
	if err != nil {
		return PayerDescriptor{}, err
	}
	switch PaymentMethod(strings.ToLower(method)) {
	case MethodPaypal:
		return PayerDescriptor{Method: MethodPaypal}, nil
	case MethodCreditCard:
		card, err := newCard(f)
		if err != nil {
			return PayerDescriptor{}, err
		}
		return PayerDescriptor{Method: MethodCreditCard, Card: card}, nil
	default:
		return PayerDescriptor{}, malformed("method", "unsupported payment method %q", method)
	}
}

func newCard(payer Fields) (*Card, error) {
	f, err := payer.Sub("card")
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, malformed("card", "card details are required for credit_card payments")
	}
	card := &Card{}
	if card.Number, err = f.OptionalString("number"); err != nil {
		return nil, err
	}
	if card.Type, err = f.OptionalString("type"); err != nil {
		return nil, err
	}
	if card.Cvv2, err = f.OptionalString("cvv2"); err != nil {
		return nil, err
	}
	if card.FirstName, err = f.OptionalString("first_name"); err != nil {
		return nil, err
	}
	if card.LastName, err = f.OptionalString("last_name"); err != nil {
		return nil, err
	}
	month, err := f.Int("expire_month")
	if err != nil {
		return nil, err
	}
	year, err := f.Int("expire_year")
	if err != nil {
		return nil, err
	}
	card.ExpireMonth, card.ExpireYear = int(month), int(year)
	card.Type = strings.ToLower(card.Type)

	addr, err := f.Sub("billing_address")
	if err != nil {
		return nil, err
	}
	if addr != nil {
		a := &Address{}
		for key, dst := range map[string]*string{
			"line1":        &a.Line1,
			"city":         &a.City,
			"country_code": &a.CountryCode,
			"postal_code":  &a.PostalCode,
			"state":        &a.State,
		} {
			if *dst, err = addr.OptionalString(key); err != nil {
				return nil, err
			}
		}
		a.CountryCode = strings.ToUpper(a.CountryCode)
		if err := validate.Struct(a); err != nil {
			return nil, validationError("card.billing_address", err)
		}
		card.BillingAddress = a
	}
	if err := validate.Struct(card); err != nil {
		return nil, validationError("card", err)
	}
	return card, nil
}
