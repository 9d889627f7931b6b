package jetson

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

// makeFakeChip lays out a pwmchip directory the way the kernel does, with the
// pwm0 line already present so export is a no-op.
func makeFakeChip(t *testing.T) (root, chipPath string) {
	t.Helper()
	root = t.TempDir()
	chipPath = filepath.Join(root, "pwmchip2")
	test.That(t, os.MkdirAll(filepath.Join(chipPath, "pwm0"), 0o755), test.ShouldBeNil)
	test.That(t, os.Symlink("../../devices/platform/3280000.pwm", filepath.Join(chipPath, "device")), test.ShouldBeNil)
	return root, chipPath
}

func readValue(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	return string(data)
}

func TestFindPwmChipPath(t *testing.T) {
	root, chipPath := makeFakeChip(t)

	found, err := findPwmChipPath(root, "3280000.pwm")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldEqual, chipPath)

	_, err = findPwmChipPath(root, "32a0000.pwm")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSetPwmWritesPeriodAndDuty(t *testing.T) {
	_, chipPath := makeFakeChip(t)
	pwm := newPwmDevice(chipPath, 0)

	// 1 kHz at 50%: period 1ms, active duration 0.5ms.
	test.That(t, pwm.setPwm(1000, 0.5), test.ShouldBeNil)
	test.That(t, readValue(t, pwm.lineFile("period")), test.ShouldEqual, "1000000")
	test.That(t, readValue(t, pwm.lineFile("duty_cycle")), test.ShouldEqual, "500000")
	test.That(t, readValue(t, pwm.lineFile("enable")), test.ShouldEqual, "1")

	// Raising the frequency shrinks the period below the old active
	// duration; the device must still land on a consistent state.
	test.That(t, pwm.setPwm(10000, 0.25), test.ShouldBeNil)
	test.That(t, readValue(t, pwm.lineFile("period")), test.ShouldEqual, "100000")
	test.That(t, readValue(t, pwm.lineFile("duty_cycle")), test.ShouldEqual, "25000")

	test.That(t, pwm.setPwm(0, 0.5), test.ShouldNotBeNil)
}

func TestCloseUnexports(t *testing.T) {
	_, chipPath := makeFakeChip(t)
	pwm := newPwmDevice(chipPath, 0)

	test.That(t, pwm.setPwm(50, 0.075), test.ShouldBeNil)
	test.That(t, pwm.Close(), test.ShouldBeNil)
	test.That(t, readValue(t, pwm.lineFile("enable")), test.ShouldEqual, "0")
	test.That(t, readValue(t, pwm.chipFile("unexport")), test.ShouldEqual, "0")
}
