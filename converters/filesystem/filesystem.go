// Package filesystem discovers input files and describes them for the file manifest.
package filesystem

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FileInfo describes one input file.
type FileInfo struct {
	Path       string
	Name       string
	Size       int64
	ModTime    time.Time
	CreateTime time.Time
}

// ListFiles returns the entries directly inside dir whose extension matches
// ext, ignoring case. Subdirectories are not descended into. Results are
// sorted by name.
//
// A matching entry that cannot be described, such as a dangling symlink, is
// still returned with only Path and Name set so that opening it reports the
// failure for that file.
func ListFiles(dir, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []FileInfo
	for _, d := range entries {
		if d.IsDir() || !MatchExt(d.Name(), ext) {
			continue
		}

		path := filepath.Join(dir, d.Name())
		// Stat rather than d.Info so symlinked files are followed.
		info, err := Describe(path)
		if err != nil {
			info = FileInfo{Path: path, Name: d.Name()}
		}
		files = append(files, info)
	}
	return files, nil
}

// MatchExt reports whether name ends in ext, ignoring case.
func MatchExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

// Describe stats a single regular file.
func Describe(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("not a regular file: %s", path)
	}
	return FileInfo{
		Path:       path,
		Name:       info.Name(),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		CreateTime: getCreateTime(info),
	}, nil
}

// Checksum returns the hex xxhash64 digest of the file content.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
