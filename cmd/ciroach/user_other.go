//go:build !unix

package main

// containerUser mirrors original_source/src/main.rs's #[cfg(not(unix))]
// branch: there is no portable uid:gid mapping to derive off-Unix.
func containerUser(cwd string) string {
	return "0:0"
}
