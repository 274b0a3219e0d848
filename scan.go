package serialscope

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Regular expressions for communication-capable serial devices
var serialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
	regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
	regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
	regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
	regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
}

// Exclude patterns for virtual terminals and other non-serial devices
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^tty\d+$`),  // Virtual terminals (tty1, tty2, ...)
	regexp.MustCompile(`^console$`), // Console
	regexp.MustCompile(`^ptmx$`),    // Pseudo-terminal multiplexer
	regexp.MustCompile(`^pty.*$`),   // Pseudo-terminals
	regexp.MustCompile(`^pts/.*$`),  // Pseudo-terminal slaves
}

// Scan returns the available serial devices on the system, sorted.
// Filters for communication-capable devices and excludes virtual terminals.
func Scan() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}

	var devices []string
	for _, entry := range entries {
		name := entry.Name()
		if !matchesSerialDevice(name) {
			continue
		}

		fullPath := filepath.Join("/dev", name)
		if isCharacterDevice(fullPath) {
			devices = append(devices, fullPath)
		}
	}

	sort.Strings(devices)
	return devices, nil
}

// DevicePresent reports whether the device is still enumerable by the
// host. The registry re-verifies this between scan and open so a device
// that was unplugged in the meantime fails fast.
func DevicePresent(devicePath string) bool {
	return isCharacterDevice(devicePath)
}

// matchesSerialDevice applies include and exclude patterns to a /dev name
func matchesSerialDevice(name string) bool {
	for _, pattern := range excludePatterns {
		if pattern.MatchString(name) {
			return false
		}
	}
	for _, pattern := range serialPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo contains metadata about a serial device
type PortInfo struct {
	Name         string
	Path         string
	Description  string
	SerialNumber string
	VendorID     string
	ProductID    string
	BusNumber    string
	DeviceNumber string
}

// GetPortInfo returns detailed information about a specific device
func GetPortInfo(devicePath string) (*PortInfo, error) {
	if !isCharacterDevice(devicePath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(devicePath)
	info := &PortInfo{
		Name:        name,
		Path:        devicePath,
		Description: portDescription(name),
	}

	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		enrichUSBInfo(info)
	}
	return info, nil
}

// portDescription provides human-readable descriptions for port types
func portDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo reads USB metadata from sysfs. The tty device node links
// into the USB interface directory; the parent directory holds the
// device-level attributes (idVendor, busnum, serial, ...).
func enrichUSBInfo(info *PortInfo) {
	devLink := filepath.Join("/sys/class/tty", info.Name, "device")
	resolved, err := filepath.EvalSymlinks(devLink)
	if err != nil {
		return
	}

	// Walk up from the interface directory until a directory with
	// idVendor appears (the USB device itself), bounded to a few levels.
	dir := resolved
	for i := 0; i < 4; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			info.VendorID = readSysfsAttr(dir, "idVendor")
			info.ProductID = readSysfsAttr(dir, "idProduct")
			info.SerialNumber = readSysfsAttr(dir, "serial")
			info.BusNumber = readSysfsAttr(dir, "busnum")
			info.DeviceNumber = readSysfsAttr(dir, "devnum")
			if product := readSysfsAttr(dir, "product"); product != "" {
				info.Description = product
			}
			return
		}
		dir = filepath.Dir(dir)
	}
}

// readSysfsAttr reads and trims one sysfs attribute file
func readSysfsAttr(dir, attr string) string {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
