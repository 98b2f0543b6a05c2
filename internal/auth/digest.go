package auth

import "crypto/sha256"

// refreshTokenDigest shortens a JWT to a fixed 32 bytes before bcrypt
// hashing; bcrypt rejects inputs longer than 72 bytes.
func refreshTokenDigest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
