package document

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
)

// Fingerprint derives the stable identity of the file at path from its
// absolute path, size and modification time. It is cheap enough to
// compute on every open and changes whenever the file is replaced or
// rewritten, which is exactly when cached renders and saved reading
// positions must stop matching.
func Fingerprint(path string) (uint64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve %s: %v", ErrIO, path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}

	h := fnv.New64a()
	io.WriteString(h, abs)

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(fi.Size()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(fi.ModTime().UnixNano()))
	h.Write(buf[:])

	return h.Sum64(), nil
}
