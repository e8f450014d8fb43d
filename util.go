// Package checkout 重定向支付结账相关功能
package checkout

import "math/rand"

// GetRandomString 随机生成字符串
// 参数:
//   - l: 字符串长度
//
// 返回:
//   - string: 由大写字母和数字组成的随机字符串
func GetRandomString(l int) string {
	const str = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	result := make([]byte, 0, l)
	// 全局随机源，不在每次调用时重新播种
	for i := 0; i < l; i++ {
		result = append(result, str[rand.Intn(len(str))])
	}
	return string(result)
}
