package cli

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"beaver", "seahorse", "dolphin", "whale", "narwhal", "penguin", "flamingo", "pelican", "robin", "toucan",
}

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "brave", "calm", "swift", "silent", "bouncy", "merry",
}

// roomAlphabet is what a host's generated room id is drawn from.
const roomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const roomIDLength = 6

// NewRoomID returns a random six character room id, e.g. "K3F9QZ".
func NewRoomID() string {
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomAlphabet[randomIndex(len(roomAlphabet))]
	}
	return string(b)
}

// NewParticipantID returns a readable id such as "sleepy-otter-3fa2".
// The uuid suffix keeps ids unique within a room.
func NewParticipantID() string {
	suffix := uuid.NewString()[:4]
	return fmt.Sprintf("%s-%s-%s",
		adjectives[randomIndex(len(adjectives))],
		animals[randomIndex(len(animals))],
		suffix,
	)
}

// randomIndex returns a cryptographically secure random index below n.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
