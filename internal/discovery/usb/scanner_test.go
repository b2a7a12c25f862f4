package usb

import (
	"testing"

	"github.com/google/gousb"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		name   string
		desc   gousb.DeviceDesc
		want   bool
		driver string
	}{
		{"u-blox", gousb.DeviceDesc{Vendor: 0x1546, Product: 0x01a7}, true, "Generic"},
		{"cp210x", gousb.DeviceDesc{Vendor: 0x10c4, Product: 0xea60}, true, ""},
		{"cdc", gousb.DeviceDesc{Vendor: 0x1111, Product: 0x2222, Class: gousb.ClassComm}, true, ""},
		{"keyboard", gousb.DeviceDesc{Vendor: 0x046d, Product: 0xc31c, Class: gousb.ClassHID}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := identify(&tt.desc)
			if (p != nil) != tt.want {
				t.Fatalf("identify = %+v", p)
			}
			if p != nil && p.SuggestedDriver != tt.driver {
				t.Errorf("driver = %q", p.SuggestedDriver)
			}
		})
	}
}
