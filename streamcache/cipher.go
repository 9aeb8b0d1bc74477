package streamcache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/c360/streamkit/errors"
)

const keySize = 16

type cipherMode int

const (
	modeCTR cipherMode = iota
	modeCBC
)

type transformation struct {
	name string
	mode cipherMode
}

// parseTransformation accepts "AES", "AES/CTR/NoPadding" and
// "AES/CBC/PKCS5Padding". Modes that cannot encrypt a stream of unknown
// length, such as GCM, are refused.
func parseTransformation(name string) (transformation, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(name)), "/")
	if parts[0] != "AES" {
		return transformation{}, unsupported(name)
	}
	if len(parts) == 1 {
		return transformation{name: name, mode: modeCTR}, nil
	}
	if len(parts) != 3 {
		return transformation{}, unsupported(name)
	}
	switch {
	case parts[1] == "CTR" && parts[2] == "NOPADDING":
		return transformation{name: name, mode: modeCTR}, nil
	case parts[1] == "CBC" && (parts[2] == "PKCS5PADDING" || parts[2] == "PKCS7PADDING"):
		return transformation{name: name, mode: modeCBC}, nil
	}
	return transformation{}, unsupported(name)
}

func unsupported(name string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnsupportedCipher, name),
		"CipherPair", "parseTransformation", "parse transformation")
}

// CipherPair encrypts one spool file and decrypts it again. The key is
// generated on construction and never leaves the process. Each call to
// EncryptWriter writes a fresh IV in front of the ciphertext, which
// DecryptReader reads back.
type CipherPair struct {
	t     transformation
	block cipher.Block
}

// NewCipherPair creates a pair for the given transformation with a random key
func NewCipherPair(name string) (*CipherPair, error) {
	t, err := parseTransformation(name)
	if err != nil {
		return nil, err
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.WrapFatal(err, "CipherPair", "NewCipherPair", "generate key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WrapFatal(err, "CipherPair", "NewCipherPair", "create block cipher")
	}
	return &CipherPair{t: t, block: block}, nil
}

// Transformation returns the transformation name the pair was created with
func (p *CipherPair) Transformation() string {
	return p.t.name
}

// EncryptWriter returns a writer that encrypts into w. Close must be called
// to flush the final block; it does not close w.
func (p *CipherPair) EncryptWriter(w io.Writer) (io.WriteCloser, error) {
	iv := make([]byte, p.block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.WrapFatal(err, "CipherPair", "EncryptWriter", "generate iv")
	}
	if _, err := w.Write(iv); err != nil {
		return nil, errors.WrapFatal(err, "CipherPair", "EncryptWriter", "write iv")
	}
	if p.t.mode == modeCBC {
		return &cbcWriter{mode: cipher.NewCBCEncrypter(p.block, iv), w: w}, nil
	}
	return &streamWriter{cipher.StreamWriter{S: cipher.NewCTR(p.block, iv), W: w}}, nil
}

// DecryptReader returns a reader over the plaintext of r
func (p *CipherPair) DecryptReader(r io.Reader) (io.Reader, error) {
	iv := make([]byte, p.block.BlockSize())
	if _, err := io.ReadFull(r, iv); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err),
			"CipherPair", "DecryptReader", "read iv")
	}
	if p.t.mode == modeCBC {
		return &cbcReader{mode: cipher.NewCBCDecrypter(p.block, iv), r: r}, nil
	}
	return &cipher.StreamReader{S: cipher.NewCTR(p.block, iv), R: r}, nil
}

// streamWriter keeps cipher.StreamWriter from closing the underlying writer
type streamWriter struct {
	cipher.StreamWriter
}

func (s *streamWriter) Close() error { return nil }

// cbcWriter encrypts whole blocks as they fill up and pads the last one on Close.
type cbcWriter struct {
	mode   cipher.BlockMode
	w      io.Writer
	buf    []byte
	closed bool
}

func (c *cbcWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errors.ErrStreamCacheClosed
	}
	c.buf = append(c.buf, p...)
	full := len(c.buf) - len(c.buf)%c.mode.BlockSize()
	if full == 0 {
		return len(p), nil
	}
	out := make([]byte, full)
	c.mode.CryptBlocks(out, c.buf[:full])
	c.buf = c.buf[:copy(c.buf, c.buf[full:])]
	if _, err := c.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *cbcWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	bs := c.mode.BlockSize()
	pad := bs - len(c.buf)%bs
	for i := 0; i < pad; i++ {
		c.buf = append(c.buf, byte(pad))
	}
	out := make([]byte, len(c.buf))
	c.mode.CryptBlocks(out, c.buf)
	c.buf = nil
	_, err := c.w.Write(out)
	return err
}

// cbcReader decrypts as blocks arrive and holds back the last block until
// EOF so the padding can be stripped.
type cbcReader struct {
	mode  cipher.BlockMode
	r     io.Reader
	chunk []byte
	in    []byte
	held  []byte
	out   []byte
	err   error
}

func (c *cbcReader) Read(p []byte) (int, error) {
	for len(c.out) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		c.fill()
	}
	n := copy(p, c.out)
	c.out = c.out[n:]
	return n, nil
}

func (c *cbcReader) fill() {
	if c.chunk == nil {
		c.chunk = make([]byte, DefaultBufferSize)
	}
	bs := c.mode.BlockSize()
	n, err := c.r.Read(c.chunk)
	c.in = append(c.in, c.chunk[:n]...)

	switch {
	case err == io.EOF:
		if len(c.in)%bs != 0 {
			c.err = corrupted("ciphertext is not a whole number of blocks")
			return
		}
		data := append(c.held, c.decrypt(c.in)...)
		c.in, c.held = nil, nil
		plain, perr := unpad(data, bs)
		if perr != nil {
			c.err = perr
			return
		}
		c.out = plain
		c.err = io.EOF
	case err != nil:
		c.err = err
	default:
		full := len(c.in) - len(c.in)%bs
		if full == 0 {
			return
		}
		data := append(c.held, c.decrypt(c.in[:full])...)
		c.in = c.in[:copy(c.in, c.in[full:])]
		c.held = append([]byte(nil), data[len(data)-bs:]...)
		c.out = data[:len(data)-bs]
	}
}

func (c *cbcReader) decrypt(src []byte) []byte {
	dst := make([]byte, len(src))
	c.mode.CryptBlocks(dst, src)
	return dst
}

func unpad(data []byte, bs int) ([]byte, error) {
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, corrupted("missing padding block")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > bs {
		return nil, corrupted("bad padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, corrupted("bad padding")
		}
	}
	return data[:len(data)-pad], nil
}

func corrupted(reason string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDataCorrupted, reason),
		"CipherPair", "DecryptReader", "decrypt")
}
