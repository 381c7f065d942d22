package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	raw := make([]byte, KeyLength)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey())
	require.NoError(t, err)

	msg := "eyJhbGciOi.auth-token ✓"
	ct, err := box.Seal([]byte(msg))
	require.NoError(t, err)
	require.NotContains(t, ct, msg)

	pt, err := box.Open(ct)
	require.NoError(t, err)
	require.Equal(t, msg, string(pt))
}

func TestOpen_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, err := New(testKey())
	require.NoError(t, err)

	ct, err := box.Seal([]byte("top secret"))
	require.NoError(t, err)
	parts := strings.Split(ct, "|")
	require.Len(t, parts, 2)

	bs, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	bs[0] ^= 0x01 // flip
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	_, err = box.Open(corrupted)
	require.Error(t, err)

	_, err = box.Open("sin-separador")
	require.ErrorIs(t, err, ErrFormat)
}

func TestDeriveKey_DependsOnSalt(t *testing.T) {
	t.Parallel()
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)

	k1 := DeriveKey("passphrase", s1)
	require.Len(t, k1, KeyLength)
	require.Equal(t, k1, DeriveKey("passphrase", s1))
	require.NotEqual(t, k1, DeriveKey("passphrase", s2))
}

func TestParseKey(t *testing.T) {
	t.Parallel()
	raw := testKey()

	k, err := ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, k)

	_, err = ParseKey("corta")
	require.Error(t, err)

	_, err = New([]byte("corta"))
	require.Error(t, err)
}
