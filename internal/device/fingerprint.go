package device

import (
	"errors"
	"strings"
)

// FingerprintLength 设备指纹固定长度（8字节熵的十六进制表示）
const FingerprintLength = 16

var ErrInvalidFormat = errors.New("invalid device fingerprint format")

// Fingerprint 已校验且归一化为小写的设备指纹
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Validate 校验设备指纹，只接受16位十六进制字符（不区分大小写），返回小写形式。
// 在访问缓存和存储之前调用，非法输入不会进入缓存。
func Validate(candidate string) (Fingerprint, error) {
	if len(candidate) != FingerprintLength {
		return "", ErrInvalidFormat
	}
	for i := 0; i < len(candidate); i++ {
		if !isHex(candidate[i]) {
			return "", ErrInvalidFormat
		}
	}
	return Fingerprint(strings.ToLower(candidate)), nil
}

// MustValidate 用于常量和测试数据
func MustValidate(candidate string) Fingerprint {
	fp, err := Validate(candidate)
	if err != nil {
		panic(err)
	}
	return fp
}

func isHex(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'f':
		return true
	case b >= 'A' && b <= 'F':
		return true
	}
	return false
}
