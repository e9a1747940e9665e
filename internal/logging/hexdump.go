package logging

import (
	"fmt"
	"io"
)

const hexDumpWidth = 16

// HexDump writes data as a hex/ASCII dump, one line per 16 bytes, with
// an info label on every line. This is the "hex-dump logger (pure byte
// -> string formatter)" spec.md §1 names as an external collaborator —
// it carries no behavior beyond formatting, ported byte for byte from
// original_source/src/main.rs's and src/server.rs's `hex_dump`.
func HexDump(w io.Writer, data []byte, info string) {
	for off := 0; off < len(data); off += hexDumpWidth {
		end := off + hexDumpWidth
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		hex := make([]byte, 0, hexDumpWidth*3)
		ascii := make([]byte, 0, hexDumpWidth)
		for i, b := range chunk {
			if i > 0 {
				hex = append(hex, ' ')
			}
			hex = append(hex, fmt.Sprintf("%02X", b)...)
			if b >= 0x20 && b <= 0x7e {
				ascii = append(ascii, b)
			} else {
				ascii = append(ascii, '.')
			}
		}

		fmt.Fprintf(w, "%-20s: %-47s  |%s|\n", info, string(hex), string(ascii))
	}
}
