// internal/bulk/crc16.go
package bulk

const (
	crcInitial    = 0x0000
	crcPolynomial = 0x1021
)

// UpdateCRC16 feeds one byte into a CRC-16-CCITT (MSB first) accumulator
func UpdateCRC16(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = (crc << 1) ^ crcPolynomial
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CalculateCRC computes CRC-16-CCITT with a zero initial value. Running
// it over data followed by its big endian CRC yields zero.
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = UpdateCRC16(crc, b)
	}
	return crc
}
