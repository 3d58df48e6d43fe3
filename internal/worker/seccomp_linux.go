//go:build linux && amd64

/*
 * MIT License
 *
 * Copyright (c) 2026 sendrawtx contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package worker

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rawtxgw/sendrawtx/internal/logging"
)

// Classic-BPF building blocks (linux/bpf_common.h, linux/seccomp.h).
// golang.org/x/sys/unix does not export these as named constants, so
// they are reproduced here from the kernel headers.
const (
	bpfLd  = 0x00
	bpfW   = 0x00
	bpfAbs = 0x20
	bpfJmp = 0x05
	bpfJeq = 0x10
	bpfK   = 0x00
	bpfRet = 0x06

	seccompRetKillProcess = 0x80000000
	seccompRetAllow       = 0x7fff0000

	prSetNoNewPrivs   = 38
	prSetSeccomp      = 22
	seccompModeFilter = 2

	auditArchX86_64 = 0xc000003e

	seccompDataOffArch = 4
	seccompDataOffNr   = 0
)

// sockFilter/sockFprog mirror struct sock_filter / struct sock_fprog
// from linux/filter.h for the amd64 ABI: sock_fprog's trailing pointer
// is naturally aligned to 8 bytes, hence the 6 bytes of padding after
// the uint16 length.
type sockFilter struct {
	code uint16
	jt   uint8
	jf   uint8
	k    uint32
}

type sockFprog struct {
	length uint16
	_      [6]byte
	filter *sockFilter
}

// seccompAllowedSyscalls is the minimal syscall allow-list a worker
// needs once its listeners are bound and its RPC backend addresses are
// pre-resolved: network I/O, memory management, limited file access,
// event polling, time, and signal/process-exit plumbing. Anything else
// kills the process. Grounded on original_source/src/security.c's
// ALLOW_SYSCALL list for the x86_64 build.
var seccompAllowedSyscalls = []uint32{
	unix.SYS_READ, unix.SYS_WRITE, unix.SYS_READV, unix.SYS_WRITEV,
	unix.SYS_RECVFROM, unix.SYS_SENDTO, unix.SYS_RECVMSG, unix.SYS_SENDMSG,
	unix.SYS_ACCEPT4, unix.SYS_ACCEPT, unix.SYS_SOCKET, unix.SYS_BIND,
	unix.SYS_LISTEN, unix.SYS_GETSOCKNAME, unix.SYS_GETPEERNAME,
	unix.SYS_SETSOCKOPT, unix.SYS_GETSOCKOPT, unix.SYS_SHUTDOWN, unix.SYS_CLOSE,
	unix.SYS_CONNECT,
	unix.SYS_EPOLL_CREATE1, unix.SYS_EPOLL_CTL, unix.SYS_EPOLL_PWAIT,
	unix.SYS_POLL, unix.SYS_SELECT,
	unix.SYS_BRK, unix.SYS_MMAP, unix.SYS_MUNMAP, unix.SYS_MPROTECT,
	unix.SYS_MADVISE, unix.SYS_MREMAP,
	unix.SYS_OPENAT, unix.SYS_FSTAT, unix.SYS_LSEEK, unix.SYS_PREAD64,
	unix.SYS_PWRITE64, unix.SYS_IOCTL,
	unix.SYS_GETTIMEOFDAY, unix.SYS_CLOCK_GETTIME, unix.SYS_CLOCK_NANOSLEEP,
	unix.SYS_NANOSLEEP,
	unix.SYS_RT_SIGACTION, unix.SYS_RT_SIGPROCMASK, unix.SYS_RT_SIGRETURN,
	unix.SYS_SIGALTSTACK,
	unix.SYS_EXIT, unix.SYS_EXIT_GROUP, unix.SYS_GETPID, unix.SYS_GETTID,
	unix.SYS_GETPPID,
	unix.SYS_FUTEX, unix.SYS_GETRANDOM, unix.SYS_FCNTL, unix.SYS_SENDFILE,
	unix.SYS_UNAME, unix.SYS_ARCH_PRCTL, unix.SYS_SET_TID_ADDRESS,
	unix.SYS_SET_ROBUST_LIST, unix.SYS_RSEQ, unix.SYS_PRLIMIT64, unix.SYS_STATX,
}

func loadStmt(k uint32) sockFilter { return sockFilter{code: bpfLd | bpfW | bpfAbs, k: k} }

func retStmt(k uint32) sockFilter { return sockFilter{code: bpfRet | bpfK, k: k} }

func jeqStmt(k uint32, jt, jf uint8) sockFilter {
	return sockFilter{code: bpfJmp | bpfJeq | bpfK, jt: jt, jf: jf, k: k}
}

// buildFilter mirrors security.c's apply_seccomp_filter: check the
// syscall's target architecture first (kill on mismatch, guarding
// against 32-bit compat-mode syscall-number confusion), allow each
// whitelisted syscall number, then kill the process by default.
func buildFilter() []sockFilter {
	prog := []sockFilter{
		loadStmt(seccompDataOffArch),
		jeqStmt(auditArchX86_64, 1, 0),
		retStmt(seccompRetKillProcess),
		loadStmt(seccompDataOffNr),
	}
	for _, nr := range seccompAllowedSyscalls {
		prog = append(prog,
			jeqStmt(nr, 0, 1),
			retStmt(seccompRetAllow),
		)
	}
	prog = append(prog, retStmt(seccompRetKillProcess))
	return prog
}

// ApplySeccomp installs the worker's syscall allow-list when enabled.
// It must run after listeners are bound and RPC backend addresses are
// pre-resolved (internal/rpcclient resolves those at construction
// time), since no further bind/connect-by-name calls are permitted
// once the filter is in place. Failure is logged and non-fatal,
// matching security.c's "continuing without syscall restrictions".
func ApplySeccomp(enabled bool, log *logging.Logger) {
	if !enabled {
		return
	}

	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, uintptr(prSetNoNewPrivs), 1, 0); errno != 0 {
		log.Warnf("prctl(PR_SET_NO_NEW_PRIVS) failed: %v", errno)
	}

	filter := buildFilter()
	prog := sockFprog{length: uint16(len(filter)), filter: &filter[0]}

	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, uintptr(prSetSeccomp), uintptr(seccompModeFilter), uintptr(unsafe.Pointer(&prog))); errno != 0 {
		log.Warnf("seccomp filter failed: %v, continuing without syscall restrictions", errno)
		return
	}
	log.Infof("seccomp syscall filter applied")
}
