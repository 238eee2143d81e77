package domain

import "io"

type Compressor interface {
	// Compress writes a compressed sibling of rawPath, removes rawPath and
	// returns the new path.
	Compress(rawPath string) (string, error)
	Decompress(src io.Reader, destPath string) error
	// Reader returns a decompressing view of src.
	Reader(src io.Reader) (io.ReadCloser, error)
	Extension() string
}

type Hasher interface {
	Hash(path string) (string, error)
	HashReader(r io.Reader) (string, error)
	Verify(path, expected string) (bool, error)
}
