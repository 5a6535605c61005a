package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// 容器布局（全部小端）：
//
//	[entry_count u32]
//	entry_count 次 { [name 32B, NUL 填充] [payload_size u32] [payload_offset u32] }
//	按声明顺序拼接的 payload
//
// payload_offset 是相对整个缓冲区起始位置的绝对偏移。
const (
	NameFieldSize = 32
	MaxNameLength = NameFieldSize - 1

	countSize       = 4
	entryHeaderSize = NameFieldSize + 4 + 4
)

var (
	ErrNameTooLong      = errors.New("archive entry name too long")
	ErrInvalidName      = errors.New("archive entry name invalid")
	ErrDuplicateName    = errors.New("archive entry name duplicated")
	ErrArchiveTooLarge  = errors.New("archive exceeds 4GiB addressable size")
	ErrMalformedArchive = errors.New("malformed archive")
)

// Entry 一个命名的 payload
type Entry struct {
	Name string
	Data []byte
}

// Build 按顺序打包 entries。相同输入产生逐字节相同的输出。
// 名称超过 MaxNameLength 字节时返回 ErrNameTooLong，不做截断。
func Build(entries []Entry) ([]byte, error) {
	seen := make(map[string]struct{}, len(entries))
	total := uint64(countSize) + uint64(len(entries))*entryHeaderSize
	headerEnd := total

	for _, e := range entries {
		if err := checkName(e.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = struct{}{}
		total += uint64(len(e.Data))
	}
	if total > math.MaxUint32 {
		return nil, ErrArchiveTooLarge
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:countSize], uint32(len(entries)))

	offset := uint32(headerEnd)
	for i, e := range entries {
		h := buf[countSize+i*entryHeaderSize : countSize+(i+1)*entryHeaderSize]
		copy(h[:NameFieldSize], e.Name)
		binary.LittleEndian.PutUint32(h[NameFieldSize:NameFieldSize+4], uint32(len(e.Data)))
		binary.LittleEndian.PutUint32(h[NameFieldSize+4:], offset)
		copy(buf[offset:], e.Data)
		offset += uint32(len(e.Data))
	}
	return buf, nil
}

// Read 按头部声明的偏移和大小取出所有 entry
func Read(archive []byte) ([]Entry, error) {
	if len(archive) < countSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedArchive, len(archive))
	}
	count := uint64(binary.LittleEndian.Uint32(archive[:countSize]))
	headerEnd := countSize + count*entryHeaderSize
	if headerEnd > uint64(len(archive)) {
		return nil, fmt.Errorf("%w: header for %d entries exceeds buffer", ErrMalformedArchive, count)
	}

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		h := archive[countSize+i*entryHeaderSize : countSize+(i+1)*entryHeaderSize]

		nameField := h[:NameFieldSize]
		n := bytes.IndexByte(nameField, 0)
		if n <= 0 {
			return nil, fmt.Errorf("%w: entry %d has no terminated name", ErrMalformedArchive, i)
		}

		size := uint64(binary.LittleEndian.Uint32(h[NameFieldSize : NameFieldSize+4]))
		offset := uint64(binary.LittleEndian.Uint32(h[NameFieldSize+4:]))
		if offset < headerEnd || offset+size > uint64(len(archive)) {
			return nil, fmt.Errorf("%w: entry %d payload out of range", ErrMalformedArchive, i)
		}

		data := make([]byte, size)
		copy(data, archive[offset:offset+size])
		entries = append(entries, Entry{Name: string(nameField[:n]), Data: data})
	}
	return entries, nil
}

// Lookup 按名称取单个 payload
func Lookup(archive []byte, name string) ([]byte, bool, error) {
	entries, err := Read(archive)
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Data, true, nil
		}
	}
	return nil, false, nil
}

func checkName(name string) error {
	if name == "" || bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q is %d bytes, max %d", ErrNameTooLong, name, len(name), MaxNameLength)
	}
	return nil
}
