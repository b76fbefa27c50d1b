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
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"regexp"
	"strings"
)

// PEMTypePublicKey is the armour label for a PKIX SubjectPublicKeyInfo.
const PEMTypePublicKey = "PUBLIC KEY"

// armour matches "-----BEGIN ...-----" and "-----END ...-----" lines
// regardless of the label between the dashes.
var armour = regexp.MustCompile(`-----(.*?)-----`)

// ParseRSAPublicKeyPEM decodes PEM text holding an X.509 SubjectPublicKeyInfo
// into an RSA public key.
//
// The armour lines are stripped along with every line separator and
// whitespace character, so keys pasted into config files or environment
// variables on a single line are accepted. The remaining text is decoded as
// standard base64 (padding optional) and parsed as PKIX DER.
//
// Example:
//
//	pub, err := encoding.ParseRSAPublicKeyPEM(pemText)
func ParseRSAPublicKeyPEM(text string) (*rsa.PublicKey, error) {
	body := armour.ReplaceAllString(text, "")
	body = strings.Join(strings.Fields(body), "")
	if body == "" {
		return nil, fmt.Errorf("%w: empty PEM body", ErrInvalidKey)
	}

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		der, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrInvalidKey, err)
		}
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: pkix: %v", ErrInvalidKey, err)
	}
	return RSAPublicKey(pub)
}

// RSAPublicKey returns key as an *rsa.PublicKey or ErrInvalidKey if it holds
// any other key type.
func RSAPublicKey(key crypto.PublicKey) (*rsa.PublicKey, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		if k == nil || k.N == nil {
			return nil, fmt.Errorf("%w: nil RSA key", ErrInvalidKey)
		}
		return k, nil
	case rsa.PublicKey:
		if k.N == nil {
			return nil, fmt.Errorf("%w: nil RSA modulus", ErrInvalidKey)
		}
		return &k, nil
	case nil:
		return nil, fmt.Errorf("%w: nil key", ErrInvalidKey)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, key)
	}
}

// EncodePublicKeyPEM encodes a public key to PEM format.
//
// Example:
//
//	pemData, err := encoding.EncodePublicKeyPEM(publicKey)
func EncodePublicKeyPEM(publicKey crypto.PublicKey) ([]byte, error) {
	if publicKey == nil {
		return nil, ErrInvalidKey
	}

	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	block := &pem.Block{
		Type:  PEMTypePublicKey,
		Bytes: der,
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, block); err != nil {
		return nil, fmt.Errorf("failed to encode PEM: %w", err)
	}

	return buf.Bytes(), nil
}
