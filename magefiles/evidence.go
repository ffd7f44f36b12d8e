//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Evidence builds the CLI and runs one query, saving the result under
// output/queries. The query is read from the QUERY environment variable.
func Evidence() error {
	mg.Deps(Init, Build)

	query := strings.TrimSpace(os.Getenv("QUERY"))
	if query == "" {
		return fmt.Errorf("set QUERY to the clinical question")
	}
	save := filepath.Join("output", "queries", time.Now().Format("20060102-150405")+".yaml")
	return sh.RunV(filepath.Join(binDir, binName), "evidence", "--save", save, query)
}

// Serve builds the CLI and starts the HTTP server on ADDR (default :8080).
func Serve() error {
	mg.Deps(Build)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return sh.RunV(filepath.Join(binDir, binName), "serve", "--addr", addr)
}

// CacheProbe checks that the configured cache backend is reachable.
func CacheProbe() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "cache", "probe")
}
