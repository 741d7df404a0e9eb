//go:build unix

package tts

import (
	"os"
	"syscall"
)

// suspendProcess pauses the speech process on Unix systems
func suspendProcess(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

// resumeProcess resumes the speech process on Unix systems
func resumeProcess(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}
