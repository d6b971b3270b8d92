// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TokenCipher は保存時のAPIトークン暗号化（at-rest encryption）を提供する。
// AES-256-GCMを使用し、暗号文の先頭にnonceを連結してbase64で保存する。
// NoteSanitizer は自由記述メモの保存前サニタイズを提供する。
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// TokenCipher はAPIトークンのフィールド暗号化を行う。
// 鍵は32バイト（AES-256）。同一平文でもnonceにより毎回異なる暗号文になる。
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher はTokenCipherを生成する。
// keyは32バイトのbase64エンコード文字列（設定のTOKEN_ENCRYPTION_KEY）。
func NewTokenCipher(encodedKey string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("暗号化鍵のデコードに失敗しました: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("暗号化鍵は32バイトである必要があります (got %d)", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("暗号器の初期化に失敗しました: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCMモードの初期化に失敗しました: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt は平文トークンを暗号化し、nonce||ciphertextのbase64表現を返す。
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonceの生成に失敗しました: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt はEncryptの出力を復号して平文トークンを返す。
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("暗号文のデコードに失敗しました: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("暗号文が短すぎます (%d bytes)", len(sealed))
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("復号に失敗しました: %w", err)
	}
	return string(plaintext), nil
}
