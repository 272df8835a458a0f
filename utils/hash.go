package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// 消息指纹：sender + "|" + receiver + "|" + text 的 sha256
// 同一收件人收到同样内容即视为重复，与去重查询的索引列对应

func MessageFingerprint(sender, receiver, text string) string {
	sum := sha256.Sum256([]byte(sender + "|" + receiver + "|" + text))

	return hex.EncodeToString(sum[:])
}
