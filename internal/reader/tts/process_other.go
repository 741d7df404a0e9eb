//go:build !unix

package tts

import "os"

// Windows has no SIGSTOP/SIGCONT equivalent for a child process.
func suspendProcess(p *os.Process) error {
	return ErrPauseUnsupported
}

func resumeProcess(p *os.Process) error {
	return ErrPauseUnsupported
}
