//go:build unix

package mcp

import (
	"os/exec"
	"syscall"
)

// setProcessGroup 让子进程自成进程组，取消时向整组发送 SIGKILL，
// 包装脚本派生的子进程一并退出。
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
