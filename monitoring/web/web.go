// Package web holds the dashboard pages served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

//go:embed dist
var dist embed.FS

// DevEnv is the environment variable that makes the monitor serve the pages
// from the source tree instead of the copy built into the binary.
const DevEnv = "VMSA_MONITOR_DEV"

// GetAssets returns the dashboard pages.
func GetAssets() http.FileSystem {
	if devMode() {
		if dir, ok := sourceDir(); ok {
			log.Printf("Serving monitor pages from %s", dir)
			return http.Dir(dir)
		}
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		log.Panic(err)
	}

	return http.FS(sub)
}

func sourceDir() (string, bool) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", false
	}

	return filepath.Join(filepath.Dir(file), "dist"), true
}

func devMode() bool {
	v, err := strconv.ParseBool(os.Getenv(DevEnv))
	return err == nil && v
}
