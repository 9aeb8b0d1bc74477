package streamcache

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/errors"
)

func TestCipherPair_RoundTrip(t *testing.T) {
	for _, name := range []string{"AES/CBC/PKCS5Padding", "AES/CTR/NoPadding", "aes/cbc/pkcs7padding"} {
		for _, size := range []int{0, 1, 15, 16, 17, 5000} {
			p, err := NewCipherPair(name)
			require.NoError(t, err)
			plain := pattern(size)

			var sink bytes.Buffer
			w, err := p.EncryptWriter(&sink)
			require.NoError(t, err)
			// uneven writes
			for i := 0; i < len(plain); i += 7 {
				end := min(i+7, len(plain))
				_, err := w.Write(plain[i:end])
				require.NoError(t, err)
			}
			require.NoError(t, w.Close())

			r, err := p.DecryptReader(bytes.NewReader(sink.Bytes()))
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err, "%s size %d", name, size)
			assert.Equal(t, len(plain), len(got), "%s size %d", name, size)
			assert.True(t, bytes.Equal(plain, got), "%s size %d", name, size)
		}
	}
}

func TestCipherPair_FreshIVPerStream(t *testing.T) {
	p, err := NewCipherPair("AES/CBC/PKCS5Padding")
	require.NoError(t, err)

	encrypt := func() []byte {
		var sink bytes.Buffer
		w, err := p.EncryptWriter(&sink)
		require.NoError(t, err)
		_, err = w.Write([]byte("same plaintext"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return sink.Bytes()
	}
	assert.NotEqual(t, encrypt(), encrypt())
}

func TestCipherPair_Unsupported(t *testing.T) {
	for _, name := range []string{"", "AES/GCM/NoPadding", "AES/ECB/PKCS5Padding", "DES/CBC/PKCS5Padding", "RC4"} {
		_, err := NewCipherPair(name)
		assert.ErrorIs(t, err, errors.ErrUnsupportedCipher, name)
		assert.True(t, errors.IsInvalid(err), name)
	}
}

func TestCipherPair_CorruptedCiphertext(t *testing.T) {
	p, err := NewCipherPair("AES/CBC/PKCS5Padding")
	require.NoError(t, err)

	var sink bytes.Buffer
	w, err := p.EncryptWriter(&sink)
	require.NoError(t, err)
	_, err = w.Write([]byte("some data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	truncated := sink.Bytes()[:sink.Len()-3]
	r, err := p.DecryptReader(bytes.NewReader(truncated))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)

	_, err = p.DecryptReader(bytes.NewReader([]byte{1, 2}))
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)
}
