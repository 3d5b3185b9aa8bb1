package tunnel

import (
	"fmt"
	"strings"
)

// hexdumpWidth is the number of bytes rendered per hexdump line.
const hexdumpWidth = 16

// Hexdump renders data in the classic offset / hex / ASCII layout, one line
// per 16 bytes. Used for debug tracing of relayed chunks.
//
//	0000: 30 0c 00 04 74 65 73 74 68 65 6c 6c 6f           0...testhello
func Hexdump(data []byte) string {
	var sb strings.Builder

	for i := 0; i < len(data); i += hexdumpWidth {
		chunk := data[i:min(i+hexdumpWidth, len(data))]

		hexBytes := make([]string, len(chunk))
		ascii := make([]byte, len(chunk))
		for j, b := range chunk {
			hexBytes[j] = fmt.Sprintf("%02x", b)
			if b >= 0x20 && b <= 0x7e {
				ascii[j] = b
			} else {
				ascii[j] = '.'
			}
		}

		fmt.Fprintf(&sb, "%04x: %-48s %s\n", i, strings.Join(hexBytes, " "), ascii)
	}

	return sb.String()
}
