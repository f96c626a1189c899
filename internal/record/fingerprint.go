package record

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// Fingerprint returns a stable sha256 digest of the record's content.
//
// The digest covers every field name and value in iteration order, with
// NUL separators so that ("ab","c") and ("a","bc") hash differently. salt
// is mixed in first; callers bind the digest to their mapping configuration
// through it, so a configuration edit invalidates stored fingerprints.
func Fingerprint(r *Record, salt string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte{0})
	for _, name := range r.Fields() {
		h.Write([]byte(name))
		h.Write([]byte{0})
		values := r.Values(name)
		h.Write([]byte(strconv.Itoa(len(values))))
		h.Write([]byte{0})
		for _, v := range values {
			h.Write([]byte(v))
			h.Write([]byte{0})
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
