package compiler

import (
	"crypto/md5"
	"encoding/base64"
	"strings"
)

// checksumPrefix is the marker of the checksum line.
const checksumPrefix = "! Checksum: "

// checksumLine computes the checksum line of a compiled list per the
// filter-list ecosystem convention: line endings are normalized to "\n", any
// existing checksum line is removed, the MD5 of the UTF-8 bytes is
// base64-encoded, and the trailing "=" padding is stripped.
func checksumLine(lines []string) (line string) {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, checksumPrefix) {
			continue
		}

		kept = append(kept, strings.ReplaceAll(l, "\r\n", "\n"))
	}

	sum := md5.Sum([]byte(strings.Join(kept, "\n")))
	b64 := base64.StdEncoding.EncodeToString(sum[:])

	return checksumPrefix + strings.TrimRight(b64, "=")
}
