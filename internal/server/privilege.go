package server

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// dropPrivileges reproduces the sequence original_source/src/http-server.c
// runs as root: resolve the unprivileged user and drop group privileges
// first (while /etc is still reachable), chroot, then drop the user id last
// so the chroot call itself still ran as root.
func dropPrivileges(username, chrootDir string) error {
	if unix.Geteuid() != 0 || (username == "" && chrootDir == "") {
		return nil
	}

	var uid, gid int
	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			return fmt.Errorf("server: lookup user %q: %w", username, err)
		}
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return err
		}
		gid, err = strconv.Atoi(u.Gid)
		if err != nil {
			return err
		}

		if err := unix.Setresgid(gid, gid, gid); err != nil {
			return fmt.Errorf("server: setresgid: %w", err)
		}
		if err := unix.Setgroups([]int{gid}); err != nil {
			return fmt.Errorf("server: setgroups: %w", err)
		}
	}

	if chrootDir != "" {
		if err := unix.Chroot(chrootDir); err != nil {
			return fmt.Errorf("server: chroot %q: %w", chrootDir, err)
		}
		if err := unix.Chdir("/"); err != nil {
			return fmt.Errorf("server: chdir after chroot: %w", err)
		}
	}

	if username != "" {
		if err := unix.Setresuid(uid, uid, uid); err != nil {
			return fmt.Errorf("server: setresuid: %w", err)
		}
	}
	return nil
}
