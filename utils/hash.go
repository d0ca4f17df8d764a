package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashIdentifier 加盐 hash，用于在审计与日志中关联电话号码而不保存明文，盐 + ":" + value
func HashIdentifier(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + ":" + value))
	return hex.EncodeToString(sum[:])
}
