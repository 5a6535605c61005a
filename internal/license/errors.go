package license

import "errors"

var (
	// ErrNotFound 指纹格式正确但存储中没有该设备
	ErrNotFound = errors.New("device not found")
	// ErrStoreUnavailable 存储暂时不可用（超时、熔断、连接错误），可重试，不缓存
	ErrStoreUnavailable = errors.New("license store unavailable")
	// ErrDeviceExists 设备已注册
	ErrDeviceExists = errors.New("device already registered")
	// ErrInvalidStatus 状态、订阅状态或套餐取值非法
	ErrInvalidStatus = errors.New("invalid license status")
)
