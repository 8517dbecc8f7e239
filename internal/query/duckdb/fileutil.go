package duckdb

import (
	"fmt"
	"io"
	"os"
)

// maxStagedFileBytes bounds a database file pulled from the object store.
const maxStagedFileBytes int64 = 4 << 30

// stageFile copies reader into a new owner-only file at path. Files larger
// than maxStagedFileBytes are rejected and removed.
func stageFile(path string, reader io.Reader) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	written, copyErr := io.Copy(file, io.LimitReader(reader, maxStagedFileBytes+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		return copyErr
	case written > maxStagedFileBytes:
		_ = os.Remove(path)
		return fmt.Errorf("database file exceeds %d bytes", maxStagedFileBytes)
	}
	return closeErr
}
