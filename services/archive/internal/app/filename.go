package app

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	blobExtension = ".jpg"
	// digestSeparator never survives sanitizeRef, so an escaped name cannot
	// match the name of a ref that needed no escaping.
	digestSeparator = "."
	digestBytes     = 8
)

// StorageFilename derives the blob name for an upload. The owner prefix keeps
// two owners from ever sharing a name; refs that need escaping get a 64-bit
// digest suffix so distinct refs stay distinct.
func StorageFilename(ownerID int64, contentRef string) string {
	safe := sanitizeRef(contentRef)
	if safe != contentRef {
		sum := blake2b.Sum256([]byte(contentRef))
		safe = safe + digestSeparator + hex.EncodeToString(sum[:digestBytes])
	}
	return fmt.Sprintf("user_%d_%s%s", ownerID, safe, blobExtension)
}

func sanitizeRef(ref string) string {
	var b strings.Builder
	b.Grow(len(ref))
	for _, r := range ref {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}
