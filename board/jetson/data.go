package jetson

// Pin data for the 40-pin expansion header on Jetson Orin family devkits
// (AGX Orin, Orin NX, Orin Nano), taken from the tegra234 pinmux tables.
//
// Digital pins live on the main tegra234-gpio controller, exposed as
// gpiochip0 with sysfs base 316. Hardware PWM pins additionally map to a PWM
// controller; which header pins actually carry PWM depends on the pinmux
// selected with jetson-io (see README). The assignments below match the
// "pwm1/pwm5" header mode this project documents: pin 15 and pin 33.

const (
	mainGPIOChip = "gpiochip0"
	mainGPIOBase = 316
)

type pinMapping struct {
	// name is the tegra SoC pad name, for log messages and debugging against
	// /sys/kernel/debug/gpio.
	name string
	// line is the line offset on mainGPIOChip. The sysfs global number is
	// mainGPIOBase + line.
	line int

	// pwmSysfsDir is the platform-device name of the PWM controller this pin
	// muxes to, e.g. "3280000.pwm". Empty when the pin has no hardware PWM.
	pwmSysfsDir string
	pwmLine     int

	hwPWMSupported bool
}

// gpioMappings is keyed by physical (BOARD) pin number on the 40-pin header.
var gpioMappings = map[int]pinMapping{
	7:  {name: "PQ.06", line: 106},
	11: {name: "PR.04", line: 112},
	12: {name: "PH.07", line: 50},
	13: {name: "PY.00", line: 122},
	15: {name: "PH.00", line: 43, pwmSysfsDir: "3280000.pwm", pwmLine: 0, hwPWMSupported: true},
	16: {name: "PY.04", line: 126},
	18: {name: "PA.00", line: 0},
	19: {name: "PZ.05", line: 135},
	21: {name: "PZ.04", line: 134},
	22: {name: "PY.01", line: 123},
	23: {name: "PZ.03", line: 133},
	24: {name: "PZ.06", line: 136},
	29: {name: "PN.01", line: 85},
	31: {name: "PQ.05", line: 105},
	32: {name: "PG.06", line: 41},
	33: {name: "PH.06", line: 49, pwmSysfsDir: "32a0000.pwm", pwmLine: 0, hwPWMSupported: true},
	35: {name: "PH.04", line: 47},
	36: {name: "PG.07", line: 42},
	37: {name: "PG.04", line: 39},
	38: {name: "PI.02", line: 53},
	40: {name: "PI.01", line: 52},
}

func (m pinMapping) gpioGlobal() int {
	return mainGPIOBase + m.line
}
