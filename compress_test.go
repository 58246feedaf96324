// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"bytes"
	stdzlib "compress/zlib"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zlibWindow returns the window size advertised by a zlib stream header.
func zlibWindow(stream []byte) int {
	return 1 << (int(stream[0]>>4) + 8)
}

// textLike returns n bytes of compressible but non-trivial data.
func textLike(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	words := []string{"squad ", "marine ", "ork ", "eldar ", "heretic ", "\\data\\", "art ", "0451 "}
	var b bytes.Buffer
	for b.Len() < n {
		b.WriteString(words[rng.Intn(len(words))])
	}
	return b.Bytes()[:n]
}

func TestEncodePayloadPolicy(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		window int
	}{
		{"tiny file is stored", 10, 0},
		{"just under 16 KiB is stored", minCompressSize - 1, 0},
		{"16 KiB uses a 16 KiB window", minCompressSize, window16K},
		{"20 KiB uses a 16 KiB window", 20 << 10, window16K},
		{"1 MiB uses a 16 KiB window", smallWindowLimit, window16K},
		{"20 MiB uses a 32 KiB window", 20 << 20, window32K},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := textLike(test.size, int64(test.size))
			stored, window, err := encodePayload(data)
			require.NoError(t, err)
			require.Equal(t, test.window, window)

			if window == 0 {
				assert.Equal(t, data, stored)
				return
			}
			assert.Less(t, len(stored), len(data))
			assert.Equal(t, test.window, zlibWindow(stored))

			out, err := decompressZlib(stored, int64(len(data)))
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestEncodePayloadIncompressible(t *testing.T) {
	data := make([]byte, 64<<10)
	rand.New(rand.NewSource(7)).Read(data)

	stored, window, err := encodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, 0, window)
	assert.Equal(t, data, stored)
}

func TestSegmentedStreamIsStandardZlib(t *testing.T) {
	data := textLike(300<<10, 3)
	stream, err := compressZlib(data, window16K)
	require.NoError(t, err)

	// FCHECK makes the header a multiple of 31.
	assert.Zero(t, (int(stream[0])<<8|int(stream[1]))%31)

	r, err := stdzlib.NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestZlibHeader(t *testing.T) {
	assert.Equal(t, byte(0x68), zlibHeader(window16K)[0])
	assert.Equal(t, byte(0x78), zlibHeader(window32K)[0])
}

func TestDecompressErrors(t *testing.T) {
	data := textLike(32<<10, 9)
	stream, err := compressZlib(data, window16K)
	require.NoError(t, err)

	_, err = decompressZlib([]byte("not zlib"), 10)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = decompressZlib(stream[:len(stream)/2], int64(len(data)))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = decompressZlib(stream, int64(len(data))-1)
	assert.ErrorIs(t, err, ErrDecode)

	// A forged size far beyond what the stream can hold is a decode error.
	_, err = decompressZlib(stream, 0xFFFFFFFF)
	assert.ErrorIs(t, err, ErrDecode)

	bad := bytes.Clone(stream)
	bad[len(bad)-1] ^= 0xFF
	_, err = decompressZlib(bad, int64(len(data)))
	assert.ErrorIs(t, err, ErrDecode)
}
