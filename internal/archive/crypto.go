package archive

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

// The stream layout follows the openssl command line tool:
// "Salted__" + 8-byte salt, then AES-256-CBC ciphertext with PKCS#7
// padding, key and IV derived with PBKDF2-HMAC-SHA256.
const (
	saltMagic = "Salted__"

	// SaltLen is the salt length of the OpenSSL framing.
	SaltLen = 8

	keyIterations = 10000
	derivedLen    = 48 // 32-byte key + 16-byte IV
)

// ErrMalformedSecret reports an unusable key, salt or encrypted stream.
var ErrMalformedSecret = errors.New("malformed key, salt or encrypted stream")

// RandomSalt generates a fresh salt for encryption.
func RandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func deriveKeyIV(key, salt []byte) (cipher.Block, []byte, error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("%w: empty key", ErrMalformedSecret)
	}
	if len(salt) != SaltLen {
		return nil, nil, fmt.Errorf("%w: salt must be %d bytes, got %d",
			ErrMalformedSecret, SaltLen, len(salt))
	}

	material := pbkdf2.Key(key, salt, keyIterations, derivedLen, sha256.New)
	block, err := aes.NewCipher(material[:32])
	if err != nil {
		return nil, nil, fmt.Errorf("init cipher: %w", err)
	}
	return block, material[32:], nil
}

// NewEncryptWriter wraps w so that everything written to it is encrypted.
// The salt framing prefix is emitted before the first payload byte. Close
// flushes the final padded block but does not close w.
func NewEncryptWriter(w io.Writer, key, salt []byte) (io.WriteCloser, error) {
	block, iv, err := deriveKeyIV(key, salt)
	if err != nil {
		return nil, err
	}
	return &encryptWriter{
		w:    w,
		mode: cipher.NewCBCEncrypter(block, iv),
		salt: salt,
	}, nil
}

type encryptWriter struct {
	w    io.Writer
	mode cipher.BlockMode
	salt []byte

	// pending holds plaintext shorter than one block, waiting for more
	// input or for the final padding.
	pending   []byte
	wroteSalt bool
	closed    bool
}

func (e *encryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errors.New("write to closed encrypt writer")
	}
	if !e.wroteSalt {
		e.wroteSalt = true
		if _, err := e.w.Write([]byte(saltMagic)); err != nil {
			return 0, err
		}
		if _, err := e.w.Write(e.salt); err != nil {
			return 0, err
		}
	}

	e.pending = append(e.pending, p...)
	full := len(e.pending) / aes.BlockSize * aes.BlockSize
	if full > 0 {
		out := make([]byte, full)
		e.mode.CryptBlocks(out, e.pending[:full])
		if _, err := e.w.Write(out); err != nil {
			return 0, err
		}
		e.pending = append(e.pending[:0], e.pending[full:]...)
	}
	return len(p), nil
}

// Close writes the PKCS#7 padding block. The padding is always present, so
// an empty payload still produces one full block of ciphertext.
func (e *encryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if !e.wroteSalt {
		if _, err := e.w.Write([]byte(saltMagic)); err != nil {
			return err
		}
		if _, err := e.w.Write(e.salt); err != nil {
			return err
		}
	}

	padLen := aes.BlockSize - len(e.pending)%aes.BlockSize
	for i := 0; i < padLen; i++ {
		e.pending = append(e.pending, byte(padLen))
	}
	out := make([]byte, len(e.pending))
	e.mode.CryptBlocks(out, e.pending)
	e.pending = nil
	_, err := e.w.Write(out)
	return err
}

// NewDecryptReader wraps r, which must carry the salt framing prefix, and
// yields the decrypted payload. The final padding block is verified; a
// wrong key almost always surfaces as ErrMalformedSecret there.
func NewDecryptReader(r io.Reader, key []byte) (io.Reader, error) {
	header := make([]byte, len(saltMagic)+SaltLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: read salt header: %v", ErrMalformedSecret, err)
	}
	if string(header[:len(saltMagic)]) != saltMagic {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedSecret, saltMagic)
	}

	block, iv, err := deriveKeyIV(key, header[len(saltMagic):])
	if err != nil {
		return nil, err
	}
	return &decryptReader{
		r:    r,
		mode: cipher.NewCBCDecrypter(block, iv),
		buf:  make([]byte, 32*1024),
	}, nil
}

type decryptReader struct {
	r    io.Reader
	mode cipher.BlockMode
	buf  []byte

	in   []byte // ciphertext residue shorter than one block
	held []byte // decrypted tail withheld until EOF resolves the padding
	out  []byte // decrypted bytes ready to emit
	done bool
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.out) == 0 && !d.done {
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.in = append(d.in, d.buf[:n]...)
			full := len(d.in) / aes.BlockSize * aes.BlockSize
			if full > 0 {
				dec := make([]byte, full)
				d.mode.CryptBlocks(dec, d.in[:full])
				d.in = append(d.in[:0], d.in[full:]...)
				d.held = append(d.held, dec...)
			}
			// Emit everything but one block; the final block may be all
			// padding and cannot be released until EOF.
			if emit := len(d.held) - aes.BlockSize; emit > 0 {
				d.out = append(d.out, d.held[:emit]...)
				d.held = append(d.held[:0], d.held[emit:]...)
			}
		}
		if err == io.EOF {
			d.done = true
			if len(d.in) != 0 {
				return 0, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrMalformedSecret)
			}
			unpadded, padErr := stripPadding(d.held)
			if padErr != nil {
				return 0, padErr
			}
			d.out = append(d.out, unpadded...)
			d.held = nil
		} else if err != nil {
			return 0, err
		}
	}

	if len(d.out) == 0 {
		return 0, io.EOF
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

func stripPadding(block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("%w: missing padding block", ErrMalformedSecret)
	}
	padLen := int(block[len(block)-1])
	if padLen < 1 || padLen > aes.BlockSize {
		return nil, fmt.Errorf("%w: invalid padding", ErrMalformedSecret)
	}
	for _, b := range block[len(block)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid padding", ErrMalformedSecret)
		}
	}
	return block[:len(block)-padLen], nil
}
