package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// HandoffVersion 交易传递串的版本字节
const HandoffVersion byte = 0x4C

// EncodeHandoff 将序列化交易编码为 Base58Check 传递串
//
// 格式：版本字节（1字节）+ 数据 + 校验和（双重 SHA256 前4字节），整体 Base58 编码。
// 相比十六进制更短，且能发现复制粘贴中的错误。
func EncodeHandoff(data []byte) string {
	return base58.CheckEncode(data, HandoffVersion)
}

// DecodeHandoff 解析交易传递串
//
// 同时接受 Base58Check 传递串与十六进制串（可带 0x 前缀），便于与只输出十六进制的工具互通。
func DecodeHandoff(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty transaction string")
	}

	// 校验和先行：十六进制串几乎不可能同时是合法的 Base58Check 串
	data, version, err := base58.CheckDecode(s)
	if err == nil && version == HandoffVersion {
		return data, nil
	}
	if raw, ok := decodeHex(s); ok {
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode base58check: %w", err)
	}
	return nil, fmt.Errorf("unexpected version byte 0x%02x", version)
}

// decodeHex 仅当整个串是合法十六进制时成功
func decodeHex(s string) ([]byte, bool) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) == 0 || len(trimmed)%2 != 0 {
		return nil, false
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, false
	}
	return raw, true
}
