package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "1723a6c82f58befa5cff1ec02113243d9caa172090b22f590acca28c45ccc6ee"

func TestNewWalletFromPrivateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"plain hex", testPrivateKey, false},
		{"0x prefix", "0x" + testPrivateKey, false},
		{"short key", "1234", true},
		{"not hex", "zz" + testPrivateKey[2:], true},
		{"zero key", "0000000000000000000000000000000000000000000000000000000000000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWalletFromPrivateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, w.PublicKey(), 33)
			assert.Equal(t, testPrivateKey, w.PrivateKeyHex())
		})
	}
}

func TestSignIsDeterministicAndVerifies(t *testing.T) {
	w, err := NewWalletFromPrivateKey(testPrivateKey)
	require.NoError(t, err)

	msg := []byte("transfer 0.0.1001 -> 0.0.1002")
	sig1, err := w.Sign(msg)
	require.NoError(t, err)
	sig2, err := w.Sign(msg)
	require.NoError(t, err)

	assert.Len(t, sig1, SignatureLength)
	assert.Equal(t, sig1, sig2)
	assert.True(t, Verify(w.PublicKey(), msg, sig1))
	assert.False(t, Verify(w.PublicKey(), []byte("tampered"), sig1))

	other, err := NewWallet()
	require.NoError(t, err)
	assert.False(t, Verify(other.PublicKey(), msg, sig1))
}

func TestSignHashRejectsBadLength(t *testing.T) {
	w, err := NewWallet()
	require.NoError(t, err)

	_, err = w.SignHash([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestParsePublicKeyHex(t *testing.T) {
	w, err := NewWallet()
	require.NoError(t, err)

	pub, err := ParsePublicKeyHex(w.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), pub)

	_, err = ParsePublicKeyHex("02abcd")
	assert.Error(t, err)

	_, err = ParsePublicKeyHex("xyz")
	assert.Error(t, err)
}

func TestKeystoreSaveLoad(t *testing.T) {
	km, err := NewKeystoreManager(t.TempDir())
	require.NoError(t, err)
	km.WithIterations(1024)

	w, err := NewWallet()
	require.NoError(t, err)

	path, err := km.Save("0.0.1001", w, "s3cret")
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := km.Load("0.0.1001", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, w.PrivateKeyHex(), loaded.PrivateKeyHex())

	_, err = km.Load("0.0.1001", "wrong")
	assert.EqualError(t, err, "invalid password")

	_, err = km.Load("0.0.9999", "s3cret")
	assert.Error(t, err)
}
