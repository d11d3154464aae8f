package room

import (
	"crypto/rand"
	"hash/fnv"
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
)

// roomCodeAlphabet omits I, O, 0 and 1 so codes survive being read aloud.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 6

var roomCodePattern = regexp.MustCompile(`^[A-Z2-9]{6}$`)

// newRoomCode generates a random 6-character room code.
func newRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// ValidCode reports whether s has the shape of a room code.
func ValidCode(s string) bool {
	return roomCodePattern.MatchString(s)
}

const chatIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newChatMessageID builds a "<unixMs>-<6 base36 chars>" message id.
func newChatMessageID(nowMs int64) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// Degrade to a time-derived suffix; ids only need local uniqueness.
		suffix := strconv.FormatInt(nowMs%2176782336, 36) // 36^6
		for len(suffix) < 6 {
			suffix = "0" + suffix
		}
		return strconv.FormatInt(nowMs, 10) + "-" + suffix
	}
	for i, b := range buf {
		buf[i] = chatIDAlphabet[int(b)%len(chatIDAlphabet)]
	}
	return strconv.FormatInt(nowMs, 10) + "-" + string(buf)
}

// deterministicInt maps a seed string onto [min, max] with a stable,
// non-cryptographic hash. The same seed always yields the same value.
func deterministicInt(seed string, min, max int) int {
	if max <= min {
		return min
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	span := uint64(max - min + 1)
	return min + int(h.Sum64()%span)
}
