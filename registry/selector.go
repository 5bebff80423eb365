package registry

import (
	"strings"

	"github.com/arloliu/go-packedserial/transport"
)

// DefaultBaudRate is the rate used by selectors that do not set one.
const DefaultBaudRate = 115200

// Selector picks serial ports to pair with. Every non-empty key must be a prefix of the matching
// port field. A selector with Use unset or with no keys never matches.
type Selector struct {
	Use          bool   `yaml:"use" json:"use" mapstructure:"use"`
	Path         string `yaml:"path,omitempty" json:"path,omitempty" mapstructure:"path"`
	VendorID     string `yaml:"vendorId,omitempty" json:"vendorId,omitempty" mapstructure:"vendorId"`
	ProductID    string `yaml:"productId,omitempty" json:"productId,omitempty" mapstructure:"productId"`
	SerialNumber string `yaml:"serialNumber,omitempty" json:"serialNumber,omitempty" mapstructure:"serialNumber"`
	Product      string `yaml:"product,omitempty" json:"product,omitempty" mapstructure:"product"`
	BaudRate     int    `yaml:"baudRate,omitempty" json:"baudRate,omitempty" mapstructure:"baudRate"`
}

// Match reports whether port satisfies the selector.
func (s Selector) Match(port transport.PortInfo) bool {
	if !s.Use {
		return false
	}

	keys := [][2]string{
		{s.Path, transport.NormalizePath(port.Path)},
		{s.VendorID, port.VendorID},
		{s.ProductID, port.ProductID},
		{s.SerialNumber, port.SerialNumber},
		{s.Product, port.Product},
	}

	compared := 0
	for _, kv := range keys {
		if kv[0] == "" {
			continue
		}
		if !strings.HasPrefix(kv[1], kv[0]) {
			return false
		}
		compared++
	}

	return compared > 0
}

// Baud returns the selector's baud rate or DefaultBaudRate.
func (s Selector) Baud() int {
	if s.BaudRate > 0 {
		return s.BaudRate
	}

	return DefaultBaudRate
}

// MatchPort returns the first selector that matches port.
func MatchPort(selectors []Selector, port transport.PortInfo) (Selector, bool) {
	for _, s := range selectors {
		if s.Match(port) {
			return s, true
		}
	}

	return Selector{}, false
}
