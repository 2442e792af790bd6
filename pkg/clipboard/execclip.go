package clipboard

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// ExecIO reads/writes the OS clipboard by shelling out to a platform text
// utility, the same external-process approach the reference implementation
// used via popen("pbpaste"/"pbcopy"), translated to os/exec.
type ExecIO struct {
	readCmd  []string
	writeCmd []string
}

// NewExecIO selects the clipboard utility pair for runtime.GOOS: pbpaste/
// pbcopy on macOS, wl-paste/wl-copy on Linux under Wayland (the common case
// today). Windows is not wired — see DESIGN.md.
func NewExecIO() (*ExecIO, error) {
	switch runtime.GOOS {
	case "darwin":
		return &ExecIO{
			readCmd:  []string{"pbpaste"},
			writeCmd: []string{"pbcopy"},
		}, nil
	case "linux":
		return &ExecIO{
			readCmd:  []string{"wl-paste", "--no-newline"},
			writeCmd: []string{"wl-copy"},
		}, nil
	default:
		return nil, errors.New(errors.ErrCodeClipboardInvalidFormat,
			fmt.Sprintf("no clipboard utility binding for GOOS=%s", runtime.GOOS))
	}
}

func (e *ExecIO) ReadUTF8() (string, error) {
	cmd := exec.Command(e.readCmd[0], e.readCmd[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(errors.ErrCodeClipboardInvalidFormat, "failed to read OS clipboard", err)
	}
	return out.String(), nil
}

func (e *ExecIO) WriteUTF8(text string) error {
	cmd := exec.Command(e.writeCmd[0], e.writeCmd[1:]...)
	cmd.Stdin = bytes.NewReader([]byte(text))
	if err := cmd.Run(); err != nil {
		return errors.Wrap(errors.ErrCodeClipboardInvalidFormat, "failed to write OS clipboard", err)
	}
	return nil
}
