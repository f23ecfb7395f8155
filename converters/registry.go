package converters

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/darianmavgo/parquet2sqlite/converters/common"
)

var (
	driversMu  sync.RWMutex
	drivers    = make(map[string]common.Driver)
	extensions = make(map[string]string)
)

// Register makes a converter driver available by the provided name and
// claims the given file extensions for it.
// If Register is called twice with the same name or if driver is nil, it panics.
func Register(name string, driver common.Driver, exts ...string) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("converters: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("converters: Register called twice for driver " + name)
	}
	drivers[name] = driver
	for _, ext := range exts {
		extensions[strings.ToLower(ext)] = name
	}
}

// Open opens a converter by driver name and source reader.
func Open(driverName string, source io.Reader, config *common.ConversionConfig) (common.RecordProvider, error) {
	driversMu.RLock()
	driver, ok := drivers[driverName]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("converters: unknown driver %q (forgotten import?)", driverName)
	}
	return driver.Open(source, config)
}

// OpenFile opens the file at path with the named driver. Drivers that
// implement common.FileDriver read the path themselves; others get the
// opened file as a stream.
func OpenFile(driverName, path string, config *common.ConversionConfig) (common.RecordProvider, error) {
	driversMu.RLock()
	driver, ok := drivers[driverName]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("converters: unknown driver %q (forgotten import?)", driverName)
	}

	if fd, ok := driver.(common.FileDriver); ok {
		return fd.OpenFile(path, config)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{File: path, Err: err}
	}
	defer f.Close()
	return driver.Open(f, config)
}

// DriverForPath returns the driver registered for the file's extension.
func DriverForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	driversMu.RLock()
	name, ok := extensions[ext]
	driversMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unsupported file type: %q", ext)
	}
	return name, nil
}

// Drivers returns a sorted list of the names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
