package bundle

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLayout(t *testing.T) {
	archive, err := Build([]Entry{
		{Name: "main.lua", Data: []byte("print(1)")},
		{Name: "cfg.json", Data: []byte("{}")},
	})
	require.NoError(t, err)

	headerEnd := countSize + 2*entryHeaderSize
	require.Len(t, archive, headerEnd+len("print(1)")+len("{}"))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(archive[0:4]))

	first := archive[4 : 4+entryHeaderSize]
	assert.Equal(t, "main.lua", string(bytes.TrimRight(first[:NameFieldSize], "\x00")))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(first[32:36]))
	assert.Equal(t, uint32(headerEnd), binary.LittleEndian.Uint32(first[36:40]))

	second := archive[4+entryHeaderSize : 4+2*entryHeaderSize]
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(second[32:36]))
	assert.Equal(t, uint32(headerEnd+8), binary.LittleEndian.Uint32(second[36:40]))

	assert.Equal(t, "print(1){}", string(archive[headerEnd:]))
}

func TestBuildEmpty(t *testing.T) {
	archive, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, archive)

	entries, err := Read(archive)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildDeterministic(t *testing.T) {
	entries := []Entry{
		{Name: "a.lua", Data: []byte("local a = 1")},
		{Name: "img/icon.png", Data: []byte{0x89, 0x50, 0x4e, 0x47, 0x00}},
		{Name: "empty", Data: nil},
	}
	first, err := Build(entries)
	require.NoError(t, err)
	second, err := Build(entries)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: strings.Repeat("n", MaxNameLength), Data: []byte("max length name")},
		{Name: "bin", Data: []byte{0, 1, 2, 0, 255}},
		{Name: "empty", Data: []byte{}},
		{Name: "脚本.lua", Data: []byte("-- utf8 name")},
	}
	archive, err := Build(entries)
	require.NoError(t, err)

	got, err := Read(archive)
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i := range entries {
		assert.Equal(t, entries[i].Name, got[i].Name)
		assert.Equal(t, []byte(entries[i].Data), got[i].Data, entries[i].Name)
	}

	data, ok, err := Lookup(archive, "bin")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2, 0, 255}, data)

	_, ok, err = Lookup(archive, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildRejectsNames(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{"too long", []Entry{{Name: strings.Repeat("x", MaxNameLength+1)}}, ErrNameTooLong},
		{"multibyte too long", []Entry{{Name: strings.Repeat("脚", 11)}}, ErrNameTooLong},
		{"empty", []Entry{{Name: ""}}, ErrInvalidName},
		{"nul", []Entry{{Name: "a\x00b"}}, ErrInvalidName},
		{"duplicate", []Entry{{Name: "a"}, {Name: "a"}}, ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive, err := Build(tt.entries)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, archive)
		})
	}
}

func TestReadMalformed(t *testing.T) {
	valid, err := Build([]Entry{{Name: "main.lua", Data: []byte("print(1)")}})
	require.NoError(t, err)

	truncated := valid[:len(valid)-1]

	badOffset := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badOffset[4+36:4+40], 0)

	noName := append([]byte(nil), valid...)
	copy(noName[4:4+NameFieldSize], make([]byte, NameFieldSize))

	unterminated := append([]byte(nil), valid...)
	copy(unterminated[4:4+NameFieldSize], bytes.Repeat([]byte("x"), NameFieldSize))

	hugeCount := []byte{0xff, 0xff, 0xff, 0xff}

	for name, data := range map[string][]byte{
		"short":        {1, 0},
		"truncated":    truncated,
		"bad offset":   badOffset,
		"no name":      noName,
		"unterminated": unterminated,
		"huge count":   hugeCount,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Read(data)
			assert.ErrorIs(t, err, ErrMalformedArchive)
		})
	}
}
