//go:build !darwin

package filesystem

import (
	"io/fs"
	"time"
)

// getCreateTime falls back to the modification time where no birth time is kept.
func getCreateTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
