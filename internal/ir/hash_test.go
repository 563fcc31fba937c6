package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	v := IRObject{O("kind", IRString("find")), O("target", IRString("users"))}

	f1, err := Fingerprint(v)
	require.NoError(t, err)
	f2, err := Fingerprint(v)
	require.NoError(t, err)

	assert.Equal(t, f1, f2, "Fingerprint must be deterministic")
	assert.Len(t, f1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a := IRObject{O("kind", IRString("find")), O("target", IRString("users"))}
	b := IRObject{O("target", IRString("users")), O("kind", IRString("find"))}

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprintChangesWithInput(t *testing.T) {
	fa, err := Fingerprint(IRObject{O("target", IRString("users"))})
	require.NoError(t, err)
	fb, err := Fingerprint(IRObject{O("target", IRString("orders"))})
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain("querybridge/a/v1", data), hashWithDomain("querybridge/b/v1", data))
}
