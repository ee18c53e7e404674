//go:build !unix

package mcp

import "os/exec"

// setProcessGroup 非 unix 平台只杀直接子进程，由 WaitDelay 兜底
func setProcessGroup(*exec.Cmd) {}
