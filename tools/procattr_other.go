//go:build !unix

package tools

import "os/exec"

// setProcessGroup leaves the default kill-on-cancel behavior in place.
func setProcessGroup(cmd *exec.Cmd) {}
