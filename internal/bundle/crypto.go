package bundle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// 加密包布局：[salt 16B][iv 12B][tag 16B][ciphertext]
const (
	SaltSize = 16
	IVSize   = 12
	TagSize  = 16
	KeySize  = 32

	DefaultIterations = 100000

	headerSize = SaltSize + IVSize + TagSize
)

// ErrAuthenticationFailed 口令错误、数据被篡改或格式损坏都返回这个错误，调用方无法区分
var ErrAuthenticationFailed = errors.New("bundle authentication failed")

// EncryptedBundle 加密后的包
type EncryptedBundle struct {
	Salt       []byte
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// MarshalBinary 按 salt|iv|tag|ciphertext 顺序输出
func (b *EncryptedBundle) MarshalBinary() ([]byte, error) {
	if len(b.Salt) != SaltSize || len(b.IV) != IVSize || len(b.Tag) != TagSize {
		return nil, fmt.Errorf("bundle fields have wrong sizes: salt=%d iv=%d tag=%d", len(b.Salt), len(b.IV), len(b.Tag))
	}
	out := make([]byte, 0, headerSize+len(b.Ciphertext))
	out = append(out, b.Salt...)
	out = append(out, b.IV...)
	out = append(out, b.Tag...)
	out = append(out, b.Ciphertext...)
	return out, nil
}

// ParseBundle 解析二进制包，长度不足时返回 ErrAuthenticationFailed
func ParseBundle(data []byte) (*EncryptedBundle, error) {
	if len(data) < headerSize {
		return nil, ErrAuthenticationFailed
	}
	clone := make([]byte, len(data))
	copy(clone, data)
	return &EncryptedBundle{
		Salt:       clone[:SaltSize],
		IV:         clone[SaltSize : SaltSize+IVSize],
		Tag:        clone[SaltSize+IVSize : headerSize],
		Ciphertext: clone[headerSize:],
	}, nil
}

// Encryptor PBKDF2-HMAC-SHA256 派生密钥 + AES-256-GCM，salt 作为附加认证数据。
// 每次加密都生成新的 salt 和 iv。
type Encryptor struct {
	iterations int
	rand       io.Reader
}

type EncryptorOption func(*Encryptor)

// WithIterations 仅测试中调低迭代次数
func WithIterations(n int) EncryptorOption {
	return func(e *Encryptor) {
		if n > 0 {
			e.iterations = n
		}
	}
}

func WithRandom(r io.Reader) EncryptorOption {
	return func(e *Encryptor) { e.rand = r }
}

func NewEncryptor(opts ...EncryptorOption) *Encryptor {
	e := &Encryptor{iterations: DefaultIterations, rand: rand.Reader}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Encryptor) Iterations() int {
	return e.iterations
}

func (e *Encryptor) Encrypt(plaintext []byte, password string) (*EncryptedBundle, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(e.rand, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	gcm, err := e.aead(password, salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, salt)
	split := len(sealed) - TagSize
	return &EncryptedBundle{
		Salt:       salt,
		IV:         iv,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// Decrypt 先校验 tag 再返回明文，任何失败都不输出部分明文
func (e *Encryptor) Decrypt(b *EncryptedBundle, password string) ([]byte, error) {
	if b == nil || len(b.Salt) != SaltSize || len(b.IV) != IVSize || len(b.Tag) != TagSize {
		return nil, ErrAuthenticationFailed
	}
	gcm, err := e.aead(password, b.Salt)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	sealed := make([]byte, 0, len(b.Ciphertext)+TagSize)
	sealed = append(sealed, b.Ciphertext...)
	sealed = append(sealed, b.Tag...)
	plaintext, err := gcm.Open(nil, b.IV, sealed, b.Salt)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Seal 打包并加密，输出可直接下发的字节
func (e *Encryptor) Seal(entries []Entry, password string) ([]byte, error) {
	archive, err := Build(entries)
	if err != nil {
		return nil, err
	}
	enc, err := e.Encrypt(archive, password)
	if err != nil {
		return nil, err
	}
	return enc.MarshalBinary()
}

// Open 是 Seal 的逆操作
func (e *Encryptor) Open(data []byte, password string) ([]Entry, error) {
	b, err := ParseBundle(data)
	if err != nil {
		return nil, err
	}
	archive, err := e.Decrypt(b, password)
	if err != nil {
		return nil, err
	}
	return Read(archive)
}

func (e *Encryptor) aead(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, e.iterations, KeySize, sha256.New)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, TagSize)
}
