package fileutil

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"
)

// CopyVerified streams src to dst on fsys, fsyncs dst, then reads dst back
// and compares its size and SHA256 against the source. dst is removed on any
// failure.
func CopyVerified(fsys afero.Fs, src, dst string) (err error) {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			_ = out.Close()
		}
		if err != nil {
			_ = fsys.Remove(dst)
		}
	}()

	srcHasher := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync copy: %w", err)
	}
	closed = true
	if err = out.Close(); err != nil {
		return err
	}

	dstSize, dstSum, err := sha256File(fsys, dst)
	if err != nil {
		return fmt.Errorf("verify copy: %w", err)
	}
	if dstSize != written {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", written, dstSize)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

func sha256File(fsys afero.Fs, path string) (int64, []byte, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return 0, nil, err
	}
	return n, hasher.Sum(nil), nil
}

// MD5File returns the lowercase hex MD5 digest of path.
func MD5File(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// IsCrossDevice reports whether err is a rename failure caused by source and
// destination living on different filesystems.
func IsCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// SyncDir flushes directory metadata so a preceding rename survives a crash.
// Filesystems that cannot sync directories are ignored.
func SyncDir(fsys afero.Fs, dir string) error {
	d, err := fsys.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTSUP) {
		return err
	}
	return nil
}
