package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Key prefixes: u:<uuid> participant, i:<ticker> instrument,
// bal:<uuid>:<ticker> balance row, ord:<uuid> order record,
// book:<ticker> order book, tr:<ticker>:<8-byte-seq> trade.

func kParticipant(id uuid.UUID) []byte { return []byte("u:" + id.String()) }
func kInstrument(ticker string) []byte { return []byte("i:" + ticker) }
func kOrder(id uuid.UUID) []byte       { return []byte("ord:" + id.String()) }
func kBook(ticker string) []byte       { return []byte("book:" + ticker) }

func kBalance(userID uuid.UUID, ticker string) []byte {
	return []byte(fmt.Sprintf("bal:%s:%s", userID, ticker))
}

// Trades are keyed with a big-endian sequence so prefix iteration yields
// them in execution order.
func kTrade(ticker string, seq uint64) []byte {
	key := []byte("tr:" + ticker + ":")
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
