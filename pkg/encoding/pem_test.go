// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-clearinghouse.
//
// go-clearinghouse is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package encoding

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestParseRSAPublicKeyPEM(t *testing.T) {
	key := generateRSAKey(t)
	pemData, err := EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)

	pub, err := ParseRSAPublicKeyPEM(string(pemData))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))
}

func TestParseRSAPublicKeyPEM_Reformatted(t *testing.T) {
	key := generateRSAKey(t)
	pemData, err := EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	text := string(pemData)

	tests := []struct {
		name string
		text string
	}{
		{"crlf", strings.ReplaceAll(text, "\n", "\r\n")},
		{"single line", strings.ReplaceAll(text, "\n", "")},
		{"spaces", strings.ReplaceAll(text, "\n", " \t ")},
		{"body only", strings.Join(strings.Split(text, "\n")[1:len(strings.Split(text, "\n"))-2], "")},
		{"no padding", strings.TrimRight(strings.ReplaceAll(strings.ReplaceAll(text, "-----BEGIN PUBLIC KEY-----", ""), "-----END PUBLIC KEY-----", ""), "=\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := ParseRSAPublicKeyPEM(tt.text)
			require.NoError(t, err)
			assert.True(t, key.PublicKey.Equal(pub))
		})
	}
}

func TestParseRSAPublicKeyPEM_Invalid(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecPEM, err := EncodePublicKeyPEM(&ecKey.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"armour only", "-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----"},
		{"bad base64", "-----BEGIN PUBLIC KEY-----\n!!!not base64!!!\n-----END PUBLIC KEY-----"},
		{"not der", "-----BEGIN PUBLIC KEY-----\naGVsbG8gd29ybGQ=\n-----END PUBLIC KEY-----"},
		{"ec key", string(ecPEM)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSAPublicKeyPEM(tt.text)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestRSAPublicKey(t *testing.T) {
	key := generateRSAKey(t)

	pub, err := RSAPublicKey(&key.PublicKey)
	require.NoError(t, err)
	assert.Same(t, &key.PublicKey, pub)

	pub, err = RSAPublicKey(key.PublicKey)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = RSAPublicKey(&ecKey.PublicKey)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = RSAPublicKey(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)

	var nilRSA *rsa.PublicKey
	_, err = RSAPublicKey(nilRSA)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncodePublicKeyPEM_Nil(t *testing.T) {
	_, err := EncodePublicKeyPEM(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
