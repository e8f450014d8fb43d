// Package checkout 重定向支付结账相关功能
package checkout

import (
	"net/url"
	"strings"
)

// 网关识别的跳转结果标记
const (
	SuccessMarker = "successPaypal=1" // 买家确认后返回
	CancelMarker  = "errorPaypal=1"   // 买家取消后返回
)

// RedirectTargets 买家确认或取消后返回的地址
type RedirectTargets struct {
	ReturnURL string // 确认后返回地址
	CancelURL string // 取消后返回地址
}

// NewRedirectTargets 由调用方提供的基础地址生成返回地址和取消地址
// 基础地址已有查询串时使用 "&" 连接标记，否则使用 "?"
// 参数:
//   - base: 绝对地址，例如 https://shop.example.com/checkout
//
// 返回:
//   - RedirectTargets: 返回地址
//   - error: 地址为空或不是绝对地址时返回 MalformedInput
func NewRedirectTargets(base string) (RedirectTargets, error) {
	base = strings.TrimSpace(base)
	if err := validate.Var(base, "required,url"); err != nil {
		return RedirectTargets{}, malformed("return_url", "base URL must be an absolute URL, got %q", base)
	}
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return RedirectTargets{}, malformed("return_url", "base URL must be an absolute URL, got %q", base)
	}
	return RedirectTargets{
		ReturnURL: appendMarker(base, SuccessMarker),
		CancelURL: appendMarker(base, CancelMarker),
	}, nil
}

// appendMarker 在地址末尾追加查询参数，保留锚点
func appendMarker(base string, marker string) string {
	fragment := ""
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base, fragment = base[:i], base[i:]
	}
	switch {
	case !strings.Contains(base, "?"):
		base += "?" + marker
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		base += marker
	default:
		base += "&" + marker
	}
	return base + fragment
}
