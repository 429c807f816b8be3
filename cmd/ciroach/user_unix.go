//go:build unix

package main

import (
	"fmt"
	"syscall"
)

// containerUser derives the default "uid:gid" mapping from cwd's owning
// user, mirroring original_source/src/main.rs's #[cfg(unix)] branch.
func containerUser(cwd string) string {
	var stat syscall.Stat_t
	if err := syscall.Stat(cwd, &stat); err != nil {
		return "0:0"
	}
	return fmt.Sprintf("%d:%d", stat.Uid, stat.Gid)
}
