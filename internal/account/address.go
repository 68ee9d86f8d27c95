package account

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/medtreasury/medtreasury/internal/apperrors"
)

const maxAddressLength = 128

// ZeroHex is the all-zero 20 byte address, treated the same as the empty address.
const ZeroHex = "0x0000000000000000000000000000000000000000"

// Address identifies a ledger account, credential holder or vendor. It is opaque
// to the workflow; hex addresses are normalised to lower case.
type Address string

// Null is the null account.
const Null Address = ""

// Parse validates and normalises a caller-supplied address.
func Parse(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null, nil
	}
	if len(s) > maxAddressLength {
		return Null, fmt.Errorf("%w: address longer than %d characters", apperrors.ErrInvalidInput, maxAddressLength)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return Null, fmt.Errorf("%w: address contains whitespace or control characters", apperrors.ErrInvalidInput)
		}
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = "0x" + strings.ToLower(s[2:])
	}
	return Address(s), nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Address {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// IsNull reports whether a is the null account.
func (a Address) IsNull() bool {
	return a == Null || a == ZeroHex
}

func (a Address) String() string {
	return string(a)
}
