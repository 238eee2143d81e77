package compressor

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.BestCompression}
}

func NewGzipLevel(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &GzipCompressor{level: level}
}

func (g *GzipCompressor) Extension() string {
	return domain.CompressedExtension
}

// Compress writes rawPath+".gz" and removes rawPath. If anything fails the
// partial archive is removed and the raw file is left in place.
func (g *GzipCompressor) Compress(rawPath string) (string, error) {
	destPath := rawPath + g.Extension()

	if err := g.compressFile(rawPath, destPath); err != nil {
		os.Remove(destPath)
		return "", err
	}

	if err := os.Remove(rawPath); err != nil {
		return "", domain.NewIOError("remove raw dump", rawPath, err)
	}

	return destPath, nil
}

func (g *GzipCompressor) compressFile(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return domain.NewIOError("open source file", sourcePath, err)
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return domain.NewIOError("create dest file", destPath, err)
	}
	defer destFile.Close()

	gzipWriter, err := gzip.NewWriterLevel(destFile, g.level)
	if err != nil {
		return domain.NewIOError("create gzip writer", destPath, err)
	}

	if _, err := io.Copy(gzipWriter, sourceFile); err != nil {
		gzipWriter.Close()
		return domain.NewIOError("compress", sourcePath, err)
	}

	if err := gzipWriter.Close(); err != nil {
		return domain.NewIOError("flush gzip stream", destPath, err)
	}

	if err := destFile.Sync(); err != nil {
		return domain.NewIOError("sync", destPath, err)
	}

	return nil
}

// Decompress streams a gzip archive from src into destPath.
func (g *GzipCompressor) Decompress(src io.Reader, destPath string) error {
	gzipReader, err := gzip.NewReader(src)
	if err != nil {
		return domain.NewIOError("open gzip stream", destPath, err)
	}
	defer gzipReader.Close()

	destFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return domain.NewIOError("create dest file", destPath, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, gzipReader); err != nil {
		return domain.NewIOError("decompress", destPath, err)
	}

	return nil
}

// Reader wraps a compressed stream for callers that only need the content.
func (g *GzipCompressor) Reader(src io.Reader) (io.ReadCloser, error) {
	r, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return r, nil
}
