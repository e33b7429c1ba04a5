package transport

import (
	"crypto/rand"
	"math/big"
)

// cryptoRandInt returns a uniformly distributed integer in [0, maxVal),
// grounded on gortsplib's client_udp_listener.go randInRange helper.
func cryptoRandInt(maxVal int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxVal)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
