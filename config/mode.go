package config

import (
	"fmt"
	"strings"
)

// Mode selects the strategy coordinating compute and graphics.
type Mode int

const (
	// ModeCompute serialises compute and graphics.
	ModeCompute Mode = iota

	// ModeTransfer copies compute results into a separate draw buffer.
	ModeTransfer

	// ModeDouble alternates between two particle buffers.
	ModeDouble
)

// Modes lists every mode in index order.
var Modes = []Mode{ModeCompute, ModeTransfer, ModeDouble}

func (m Mode) String() string {
	switch m {
	case ModeCompute:
		return "compute"
	case ModeTransfer:
		return "transfer"
	case ModeDouble:
		return "double"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Title is the simulation type written into reports.
func (m Mode) Title() string {
	switch m {
	case ModeCompute:
		return "NORMAL COMPUTE"
	case ModeTransfer:
		return "TRANSFER BUFFERS _ ASYNC"
	case ModeDouble:
		return "DOUBLE BUFFERING _ ASYNC"
	default:
		return m.String()
	}
}

// Index is the mode number used in report file names.
func (m Mode) Index() int {
	return int(m)
}

func (m Mode) valid() bool {
	return m >= ModeCompute && m <= ModeDouble
}

// ParseMode parses a mode name. Single letters are accepted as well.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compute", "c", "normal":
		return ModeCompute, nil
	case "transfer", "t":
		return ModeTransfer, nil
	case "double", "d":
		return ModeDouble, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Vendor is the GPU vendor a physical device is picked from.
type Vendor int

const (
	VendorNVIDIA Vendor = iota
	VendorAMD
)

// PCI vendor IDs.
const (
	pciNVIDIA = 0x10DE
	pciAMD    = 0x1002
)

func (v Vendor) String() string {
	switch v {
	case VendorNVIDIA:
		return "NVIDIA"
	case VendorAMD:
		return "AMD"
	default:
		return fmt.Sprintf("Vendor(%d)", int(v))
	}
}

// PCIID returns the PCI vendor ID devices report for v.
func (v Vendor) PCIID() uint32 {
	if v == VendorAMD {
		return pciAMD
	}
	return pciNVIDIA
}

func (v Vendor) valid() bool {
	return v == VendorNVIDIA || v == VendorAMD
}

// ParseVendor parses a vendor name, ignoring case.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nvidia", "n":
		return VendorNVIDIA, nil
	case "amd", "a":
		return VendorAMD, nil
	default:
		return 0, fmt.Errorf("unknown vendor %q", s)
	}
}
