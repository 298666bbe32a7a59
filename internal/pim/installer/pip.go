package installer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// PipInstaller runs the external interpreter's package installer against a
// set of requirement specifiers. A non-zero exit is reported by the caller
// as a warning, never a terminal task failure.
type PipInstaller interface {
	Install(ctx context.Context, requirements []string) error
}

// execPip shells out to "<interpreter> -m pip install -r <file>", mirroring
// the original PIM helper's subprocess-based requirements install.
type execPip struct {
	interpreterPath string
}

// NewExecPipInstaller builds a PipInstaller invoking interpreterPath (e.g.
// "python3") as an external process.
func NewExecPipInstaller(interpreterPath string) PipInstaller {
	return &execPip{interpreterPath: interpreterPath}
}

func (e *execPip) Install(ctx context.Context, requirements []string) error {
	if len(requirements) == 0 {
		return nil
	}
	f, err := os.CreateTemp("", "pim-requirements-*.txt")
	if err != nil {
		return fmt.Errorf("pip: create requirements file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(strings.Join(requirements, "\n") + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("pip: write requirements file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pip: close requirements file: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.interpreterPath, "-m", "pip", "install", "-r", f.Name())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pip: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
