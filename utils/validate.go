package utils

import (
	"regexp"
	"strings"
)

var receiverDigits = regexp.MustCompile(`^\d+$`)

// NormalizeReceiver 去掉国际号码前缀的 "+"，网关要求纯数字 MSISDN
func NormalizeReceiver(receiver string) string {
	return strings.TrimPrefix(strings.TrimSpace(receiver), "+")
}

func ValidateReceiver(receiver string) bool {
	return receiverDigits.MatchString(NormalizeReceiver(receiver))
}
