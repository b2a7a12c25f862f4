// internal/discovery/adapters.go
package discovery

// Adapter describes a USB chip commonly found in GPS receivers, varios
// and their data cables
type Adapter struct {
	VendorID  uint16
	ProductID uint16
	Name      string

	// Driver is the driver matching the attached instrument, empty when
	// the chip is a plain USB-serial bridge
	Driver string
}

var knownAdapters = []Adapter{
	{0x0403, 0x6001, "FTDI FT232R USB-serial", ""},
	{0x0403, 0x6015, "FTDI FT-X USB-serial", ""},
	{0x067B, 0x2303, "Prolific PL2303 USB-serial", ""},
	{0x10C4, 0xEA60, "Silicon Labs CP210x USB-serial", ""},
	{0x1A86, 0x7523, "QinHeng CH340 USB-serial", ""},
	{0x1546, 0x01A7, "u-blox 7 GPS receiver", "Generic"},
	{0x1546, 0x01A8, "u-blox 8 GPS receiver", "Generic"},
}

// LookupAdapter identifies a USB vendor/product pair
func LookupAdapter(vendorID, productID uint16) (Adapter, bool) {
	for _, a := range knownAdapters {
		if a.VendorID == vendorID && a.ProductID == productID {
			return a, true
		}
	}
	return Adapter{}, false
}
