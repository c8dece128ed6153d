package classifier

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RouterSet is the set of router and liquidity-pool addresses that mark
// a transfer as a market trade. Membership is case-insensitive.
type RouterSet struct {
	addrs map[common.Address]struct{}
}

// NewRouterSet validates and normalizes addrs. It fails on any malformed
// hex address and on an empty set.
func NewRouterSet(addrs []string) (RouterSet, error) {
	set := RouterSet{addrs: make(map[common.Address]struct{}, len(addrs))}
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			return RouterSet{}, fmt.Errorf("invalid router address %q", a)
		}
		set.addrs[common.HexToAddress(a)] = struct{}{}
	}
	if len(set.addrs) == 0 {
		return RouterSet{}, fmt.Errorf("router set is empty")
	}
	return set, nil
}

// Contains reports whether addr is a known router. Malformed addresses
// are never members.
func (s RouterSet) Contains(addr string) bool {
	if !common.IsHexAddress(addr) {
		return false
	}
	_, ok := s.addrs[common.HexToAddress(addr)]
	return ok
}

// Len returns the number of distinct routers.
func (s RouterSet) Len() int {
	return len(s.addrs)
}
