package utils

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoff_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x00},
		{0x00, 0x00, 0x01},
		bytes.Repeat([]byte{0xAB}, 512),
		[]byte(`{"body":"...","sigs":{}}`),
	}

	for _, p := range payloads {
		encoded := EncodeHandoff(p)
		decoded, err := DecodeHandoff(encoded)
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
}

func TestDecodeHandoff_AcceptsHex(t *testing.T) {
	raw := []byte("serialized transaction")

	for _, s := range []string{
		hex.EncodeToString(raw),
		"0x" + hex.EncodeToString(raw),
		"  " + hex.EncodeToString(raw) + "\n",
	} {
		got, err := DecodeHandoff(s)
		require.NoError(t, err, s)
		assert.Equal(t, raw, got)
	}
}

func TestDecodeHandoff_Errors(t *testing.T) {
	valid := EncodeHandoff([]byte("payload"))
	corrupted := []byte(valid)
	// 修改中间一个字符，校验和失效
	if corrupted[5] == 'z' {
		corrupted[5] = 'y'
	} else {
		corrupted[5] = 'z'
	}

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"bad checksum", string(corrupted)},
		{"odd hex", "0xabc"},
		{"garbage", "not a transaction!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHandoff(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestChunkBytes(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int
		want      []int
	}{
		{"empty", 0, 4, nil},
		{"smaller than chunk", 3, 4, []int{3}},
		{"exact", 8, 4, []int{4, 4}},
		{"remainder", 10, 4, []int{4, 4, 2}},
		{"non-positive chunk size", 5, 0, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{1}, tt.size)
			chunks := ChunkBytes(data, tt.chunkSize)

			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.want, sizes)
			assert.Equal(t, data, bytes.Join(chunks, nil))
		})
	}
}
