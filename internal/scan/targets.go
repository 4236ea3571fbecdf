// Package scan discovers shell-capable hosts in a configured target set
// and promotes newcomers to candidate APs.
package scan

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Target-set parsing errors.
var (
	// ErrEmptyTarget indicates no target specifier was supplied.
	ErrEmptyTarget = errors.New("target set must not be empty")

	// ErrBadRange indicates a malformed a.b.c.n:m range specifier.
	ErrBadRange = errors.New("malformed address range")
)

// maxRangeHosts caps an a.b.c.n:m expansion.
const maxRangeHosts = 1 << 16

// ParseTargets expands a target-set specifier into probe addresses.
// Three forms are accepted:
//
//	a.b.c.d/mask  — every host address in the prefix
//	a.b.c.0       — shorthand for a.b.c.0/24
//	a.b.c.n:m     — m consecutive addresses starting at a.b.c.n
func ParseTargets(spec string) ([]netip.Addr, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, ErrEmptyTarget
	}

	if strings.Contains(spec, ":") {
		return parseRange(spec)
	}

	if !strings.Contains(spec, "/") {
		if strings.HasSuffix(spec, ".0") {
			spec += "/24"
		} else {
			addr, err := netip.ParseAddr(spec)
			if err != nil {
				return nil, fmt.Errorf("parse target %q: %w", spec, err)
			}
			return []netip.Addr{addr}, nil
		}
	}

	prefix, err := netip.ParsePrefix(spec)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", spec, err)
	}
	return expandPrefix(prefix), nil
}

// parseRange expands "a.b.c.n:m" to m consecutive addresses from a.b.c.n.
func parseRange(spec string) ([]netip.Addr, error) {
	base, countStr, ok := strings.Cut(spec, ":")
	if !ok || countStr == "" {
		return nil, fmt.Errorf("parse target %q: %w", spec, ErrBadRange)
	}

	start, err := netip.ParseAddr(base)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", spec, err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 || count > maxRangeHosts {
		return nil, fmt.Errorf("parse target %q: %w", spec, ErrBadRange)
	}

	addrs := make([]netip.Addr, 0, count)
	addr := start
	for range count {
		addrs = append(addrs, addr)
		addr = addr.Next()
	}
	return addrs, nil
}

// expandPrefix lists every host address in the prefix. For IPv4 prefixes
// shorter than /31 the network and broadcast addresses are skipped.
func expandPrefix(prefix netip.Prefix) []netip.Addr {
	prefix = prefix.Masked()

	var addrs []netip.Addr
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	if prefix.Addr().Is4() && prefix.Bits() < 31 && len(addrs) >= 2 {
		addrs = addrs[1 : len(addrs)-1]
	}
	return addrs
}
