package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// codeAlphabet skips 0/O and 1/I so codes survive being read aloud.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Code returns a short human-readable code of n characters, used for order
// references and referral codes. Uniqueness is enforced by the store.
func Code(prefix string, n int) string {
	if n < 1 {
		n = 6
	}
	buf := make([]byte, 0, n)
	for len(buf) < n {
		for _, c := range uuid.New() {
			if len(buf) == n {
				break
			}
			buf = append(buf, codeAlphabet[int(c)%len(codeAlphabet)])
		}
	}
	if prefix == "" {
		return string(buf)
	}
	return prefix + "-" + string(buf)
}
