package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const userTagLength = 12

// UserTagger pseudonymizes user ids for logs and message keys.
type UserTagger struct {
	key []byte
}

func NewUserTagger(secret string) *UserTagger {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		digest := blake2b.Sum256(key)
		key = digest[:]
	}
	return &UserTagger{key: key}
}

func (tagger *UserTagger) Tag(userID string) string {
	var key []byte
	if tagger != nil {
		key = tagger.key
	}
	hash, err := blake2b.New256(key)
	if err != nil {
		digest := blake2b.Sum256([]byte(userID))
		return hex.EncodeToString(digest[:])[:userTagLength]
	}
	hash.Write([]byte(userID))
	return hex.EncodeToString(hash.Sum(nil))[:userTagLength]
}
