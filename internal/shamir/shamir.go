// Package shamir implements Shamir secret sharing over GF(2^8).
//
// A secret is split byte-by-byte: each byte becomes the constant term of a
// random polynomial of degree k-1, evaluated at n distinct nonzero
// x-coordinates. Any k shares reconstruct the secret via Lagrange
// interpolation at x=0; k-1 or fewer shares reveal no statistical
// information about it.
//
// Combine does not itself verify that at least k shares were supplied:
// interpolating fewer shares yields a syntactically valid but wrong secret.
// Callers that know the threshold (the seal manager stores it out of band)
// must enforce it before combining.
package shamir

import (
	"crypto/rand"
	"fmt"

	"github.com/custodia/custodia/internal/errors"
)

// MaxShares is the largest share count the field supports (nonzero x-coordinates).
const MaxShares = 255

// Share is one Shamir share: a nonzero x-coordinate and one y-byte per secret byte.
type Share struct {
	X byte
	Y []byte
}

// Shamir error definitions.
var (
	// ErrInvalidParameters indicates an unusable n/k combination or empty secret.
	ErrInvalidParameters = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "invalid shamir parameters")

	// ErrInvalidShares indicates shares that cannot be interpolated together
	// (mismatched lengths or duplicate x-coordinates).
	ErrInvalidShares = errors.Coded("INVALID_SHARES", errors.ErrInvalidInput, "invalid shamir shares")
)

// GF(2^8) log/exp tables for the irreducible polynomial x^8+x^4+x^3+x+1 (0x11b),
// generator 3. Built once at package init; multiply and divide become table
// lookups instead of bit-by-bit reduction.
var (
	expTable [510]byte
	logTable [256]byte
)

func init() {
	x := byte(1)
	for i := 0; i < 255; i++ {
		expTable[i] = x
		logTable[x] = byte(i)
		// multiply x by the generator 3 = x * 2 + x
		y := x << 1
		if x&0x80 != 0 {
			y ^= 0x1b
		}
		x = y ^ x
	}
	// duplicate the cycle so mul can skip the mod-255 reduction
	for i := 255; i < 510; i++ {
		expTable[i] = expTable[i-255]
	}
}

func mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[int(logTable[a])+int(logTable[b])]
}

func div(a, b byte) byte {
	// division by zero is a caller bug; shares use nonzero x-coordinates
	if b == 0 {
		panic("shamir: division by zero")
	}
	if a == 0 {
		return 0
	}
	diff := int(logTable[a]) - int(logTable[b])
	if diff < 0 {
		diff += 255
	}
	return expTable[diff]
}

// evaluate computes the polynomial with the given coefficients at x using
// Horner's method. coefficients[0] is the constant term.
func evaluate(coefficients []byte, x byte) byte {
	result := coefficients[len(coefficients)-1]
	for i := len(coefficients) - 2; i >= 0; i-- {
		result = mul(result, x) ^ coefficients[i]
	}
	return result
}

// Split divides secret into n shares of which any k reconstruct it.
// Returns ErrInvalidParameters if k < 1, n < k, n > 255, or the secret is empty.
func Split(secret []byte, n, k int) ([]Share, error) {
	if k < 1 || n < k || n > MaxShares {
		return nil, fmt.Errorf("%w: n=%d k=%d", ErrInvalidParameters, n, k)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidParameters)
	}

	// one random polynomial per secret byte, constant term = the byte
	polynomials := make([][]byte, len(secret))
	for i, b := range secret {
		polynomials[i] = make([]byte, k)
		polynomials[i][0] = b
		if _, err := rand.Read(polynomials[i][1:]); err != nil {
			return nil, fmt.Errorf("failed to generate polynomial coefficients: %w", err)
		}
	}

	shares := make([]Share, n)
	for i := range shares {
		x := byte(i + 1)
		y := make([]byte, len(secret))
		for j := range secret {
			y[j] = evaluate(polynomials[j], x)
		}
		shares[i] = Share{X: x, Y: y}
	}

	// coefficients are key-equivalent material
	for _, p := range polynomials {
		for i := range p {
			p[i] = 0
		}
	}

	return shares, nil
}

// Combine reconstructs a secret by Lagrange interpolation at x=0 using
// whatever shares are supplied. It does not enforce the split threshold:
// fewer than k shares produce a well-formed but wrong secret.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares supplied", ErrInvalidShares)
	}

	length := len(shares[0].Y)
	if length == 0 {
		return nil, fmt.Errorf("%w: empty share", ErrInvalidShares)
	}

	seen := make(map[byte]bool, len(shares))
	for _, s := range shares {
		if s.X == 0 {
			return nil, fmt.Errorf("%w: zero x-coordinate", ErrInvalidShares)
		}
		if seen[s.X] {
			return nil, fmt.Errorf("%w: duplicate x-coordinate", ErrInvalidShares)
		}
		seen[s.X] = true
		if len(s.Y) != length {
			return nil, fmt.Errorf("%w: mismatched share lengths", ErrInvalidShares)
		}
	}

	secret := make([]byte, length)
	for idx := 0; idx < length; idx++ {
		var acc byte
		for j, sj := range shares {
			// L_j(0) = prod_{m != j} x_m / (x_m ^ x_j)
			basis := byte(1)
			for m, sm := range shares {
				if m == j {
					continue
				}
				basis = mul(basis, div(sm.X, sm.X^sj.X))
			}
			acc ^= mul(sj.Y[idx], basis)
		}
		secret[idx] = acc
	}

	return secret, nil
}
