package fsutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst byte-for-byte, creating parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}

// WriteFile writes data to name, creating parent directories. The file is
// left alone when it already holds exactly data, which keeps modification
// times stable across identical rebuilds. It reports whether it wrote.
func WriteFile(name string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(name); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", name, err)
	}

	if err := os.WriteFile(name, data, 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", name, err)
	}
	return true, nil
}

// CleanDir removes every entry inside dir and keeps dir itself. A missing
// directory is not an error.
func CleanDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return 0, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return len(entries), nil
}
