package capture

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	bucketDirMode  = 0755
	bucketFileMode = 0644
)

// overwriteFile replaces the bucket with body. The content is staged in a temporary file
// beside the bucket and renamed into place, so a reader sees either the previous snapshot or
// the new one, never a partial write.
func overwriteFile(path string, body []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, bucketDirMode); err != nil {
		return errors.Wrap(err, "failed to create bucket directory")
	}

	// Leading dot keeps staged files out of bucket listings
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create staging file")
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(body); err != nil {
		return errors.Wrap(err, "failed to write staging file")
	}

	if err = tmp.Chmod(bucketFileMode); err != nil {
		return errors.Wrap(err, "failed to set bucket permissions")
	}

	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close staging file")
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to replace bucket")
	}

	return nil
}

// appendFile appends body to the bucket, separating it from existing content with a single
// newline. The separator is decided from the file size, so it survives process restarts.
func appendFile(path string, body []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), bucketDirMode); err != nil {
		return errors.Wrap(err, "failed to create bucket directory")
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, bucketFileMode)
	if err != nil {
		return errors.Wrap(err, "failed to open bucket")
	}

	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = errors.Wrap(closeErr, "failed to close bucket")
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat bucket")
	}

	content := body
	if info.Size() > 0 {
		content = make([]byte, 0, len(body)+1)
		content = append(content, '\n')
		content = append(content, body...)
	}

	if _, err := file.Write(content); err != nil {
		return errors.Wrap(err, "failed to append to bucket")
	}

	return nil
}
