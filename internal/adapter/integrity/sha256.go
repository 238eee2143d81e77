package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// DefaultChunkSize bounds the memory used while hashing.
const DefaultChunkSize = 64 * 1024

type SHA256 struct {
	chunkSize int
}

func NewSHA256() *SHA256 {
	return &SHA256{chunkSize: DefaultChunkSize}
}

func (h *SHA256) Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.NewIOError("open for hashing", path, err)
	}
	defer f.Close()

	digest, err := h.HashReader(f)
	if err != nil {
		return "", domain.NewIOError("hash", path, err)
	}
	return digest, nil
}

func (h *SHA256) HashReader(r io.Reader) (string, error) {
	sum := sha256.New()
	buf := make([]byte, h.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sum.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func (h *SHA256) Verify(path, expected string) (bool, error) {
	actual, err := h.Hash(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, strings.TrimSpace(expected)), nil
}
