package settings

import (
	"fmt"
	"os/exec"

	"k8s.io/klog/v2"
)

// HelperLauncher requests the platform-level keyboard shortcuts helper.
type HelperLauncher interface {
	Launch() error
}

// CommandLauncher runs a configured external command, detached.
type CommandLauncher struct {
	Command []string
}

func (c *CommandLauncher) Launch() error {
	if len(c.Command) == 0 {
		return fmt.Errorf("no shortcuts helper command configured")
	}
	cmd := exec.Command(c.Command[0], c.Command[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start shortcuts helper: %w", err)
	}
	klog.V(2).Infof("launched shortcuts helper %q (pid %d)", c.Command[0], cmd.Process.Pid)
	go cmd.Wait()
	return nil
}
