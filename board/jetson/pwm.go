// This file drives hardware PWM lines through the kernel's sysfs interface
// under /sys/class/pwm.

package jetson

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const pwmRootPath = "/sys/class/pwm"

// findPwmChipPath locates the pwmchipN directory whose underlying platform
// device matches the given name (e.g. "3280000.pwm"). The chip index is not
// stable across kernels, so we resolve it through the device symlink.
func findPwmChipPath(root, deviceName string) (string, error) {
	chips, err := filepath.Glob(filepath.Join(root, "pwmchip*"))
	if err != nil {
		return "", err
	}
	for _, chip := range chips {
		dev, err := os.Readlink(filepath.Join(chip, "device"))
		if err != nil {
			continue
		}
		if filepath.Base(dev) == deviceName {
			return chip, nil
		}
	}
	return "", errors.Errorf("no PWM chip found for device %q under %s", deviceName, root)
}

type pwmDevice struct {
	// Immutable after construction.
	chipPath string
	line     int
	linePath string

	// Mutable; the owning pin's mutex serializes access.
	periodNs         uint64
	activeDurationNs uint64
	isEnabled        bool
}

func newPwmDevice(chipPath string, line int) *pwmDevice {
	return &pwmDevice{
		chipPath: chipPath,
		line:     line,
		linePath: filepath.Join(chipPath, fmt.Sprintf("pwm%d", line)),
	}
}

func writeValue(path string, value uint64) error {
	// The file must already exist; sysfs attributes are created by the kernel.
	err := os.WriteFile(path, []byte(fmt.Sprintf("%d", value)), 0o660)
	return errors.Wrap(err, path)
}

func (pwm *pwmDevice) chipFile(name string) string {
	return filepath.Join(pwm.chipPath, name)
}

func (pwm *pwmDevice) lineFile(name string) string {
	return filepath.Join(pwm.linePath, name)
}

// export makes the line's control files available. Exporting an
// already-exported line is not an error.
func (pwm *pwmDevice) export() error {
	if _, err := os.Lstat(pwm.linePath); err == nil {
		return nil // Already exported.
	}
	if err := writeValue(pwm.chipFile("export"), uint64(pwm.line)); err != nil {
		return err
	}
	// The kernel creates the pwmN directory asynchronously; wait for it.
	for i := 0; i < 50; i++ {
		if _, err := os.Lstat(pwm.linePath); err == nil {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errors.Errorf("pwm line %d did not appear under %s after export", pwm.line, pwm.chipPath)
}

func (pwm *pwmDevice) unexport() error {
	if _, err := os.Lstat(pwm.linePath); err != nil {
		return nil // Already unexported.
	}
	if err := pwm.disable(); err != nil {
		return err
	}
	return writeValue(pwm.chipFile("unexport"), uint64(pwm.line))
}

func (pwm *pwmDevice) enable() error {
	if pwm.isEnabled {
		return nil
	}
	if err := writeValue(pwm.lineFile("enable"), 1); err != nil {
		return err
	}
	pwm.isEnabled = true
	return nil
}

func (pwm *pwmDevice) disable() error {
	if !pwm.isEnabled {
		return nil
	}
	if err := writeValue(pwm.lineFile("enable"), 0); err != nil {
		return err
	}
	pwm.isEnabled = false
	return nil
}

// setPwm reconfigures the line to the given frequency and duty cycle and
// enables it. The sysfs duty_cycle file holds the active duration in
// nanoseconds, and the kernel rejects any state where it exceeds the period,
// so the write order depends on whether the period shrinks or grows.
func (pwm *pwmDevice) setPwm(freqHz uint, dutyCycle float64) error {
	if freqHz == 0 {
		return errors.New("PWM frequency cannot be 0")
	}
	if err := pwm.export(); err != nil {
		return err
	}

	periodNs := uint64(1e9 / float64(freqHz))
	activeDurationNs := uint64(float64(periodNs) * dutyCycle)

	if periodNs < pwm.activeDurationNs {
		// The new period is smaller than the old active duration: shrink the
		// active duration first.
		if err := writeValue(pwm.lineFile("duty_cycle"), activeDurationNs); err != nil {
			return err
		}
		pwm.activeDurationNs = activeDurationNs
		if err := writeValue(pwm.lineFile("period"), periodNs); err != nil {
			return err
		}
		pwm.periodNs = periodNs
	} else {
		if err := writeValue(pwm.lineFile("period"), periodNs); err != nil {
			return err
		}
		pwm.periodNs = periodNs
		if err := writeValue(pwm.lineFile("duty_cycle"), activeDurationNs); err != nil {
			return err
		}
		pwm.activeDurationNs = activeDurationNs
	}

	return pwm.enable()
}

func (pwm *pwmDevice) Close() error {
	return pwm.unexport()
}
