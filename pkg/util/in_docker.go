// Package util contains any functions used across the application that don't match
// any other package
package util

import "os"

// IsRunningInDocker reports whether the process runs inside a docker
// container
func IsRunningInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
