package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress 解析并校验 20 字节十六进制地址
//
// **规则**：
// - 必须带 0x 前缀，且为 40 个十六进制字符
// - 全小写或全大写视为未携带校验和，直接接受
// - 大小写混合时必须符合 EIP-55 校验和
func NormalizeAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("address %q: expected 40 hex characters", s)
	}

	addr := common.HexToAddress(s)
	body := s[2:]
	if hasMixedCase(body) && addr.Hex()[2:] != body {
		return common.Address{}, fmt.Errorf("address %q: checksum mismatch", s)
	}
	return addr, nil
}

// IsZeroAddress 判断是否为零地址
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

// ShortAddress 返回用于日志的缩写形式，例如 0xD248...aC50
func ShortAddress(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}

func hasMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
