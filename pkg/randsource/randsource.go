// Package randsource abstracts the uniform random source behind an interface
// so selection logic stays deterministic in tests while production draws from
// crypto/rand.
package randsource

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Source yields uniform integers in [0, n). Implementations must be safe for
// concurrent use.
type Source interface {
	Intn(n int) (int, error)
}

// Crypto is the production source backed by crypto/rand. The underlying
// big.Int draw rejects and resamples internally, so results are uniform
// without modulo bias.
type Crypto struct{}

func NewCrypto() Crypto { return Crypto{} }

func (Crypto) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("randsource: n must be positive, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("randsource: %w", err)
	}
	return int(v.Int64()), nil
}

// Shuffle permutes indices [0, n) uniformly (Fisher-Yates) using src.
func Shuffle(src Source, n int) ([]int, error) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j, err := src.Intn(i + 1)
		if err != nil {
			return nil, err
		}
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx, nil
}
