package container

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrNoFreePort is returned when every port in the range is taken.
var ErrNoFreePort = errors.New("container: no free host port in range")

// PortAllocator hands out host ports from [min, max]. A port is only handed
// out when it is not reserved here and can actually be bound on the host.
type PortAllocator struct {
	mu       sync.Mutex
	min, max int
	used     map[int]struct{}

	probe func(port int) bool
}

// NewPortAllocator returns an allocator over the inclusive range [min, max].
func NewPortAllocator(min, max int) (*PortAllocator, error) {
	if min <= 0 || max > 65535 || min > max {
		return nil, fmt.Errorf("container: invalid port range %d-%d", min, max)
	}
	return &PortAllocator{min: min, max: max, used: make(map[int]struct{}), probe: canBind}, nil
}

// Acquire reserves the lowest free port.
func (a *PortAllocator) Acquire() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := a.min; p <= a.max; p++ {
		if _, taken := a.used[p]; taken {
			continue
		}
		if !a.probe(p) {
			continue
		}
		a.used[p] = struct{}{}
		return p, nil
	}
	return 0, ErrNoFreePort
}

// Reserve marks port as taken without probing, e.g. for containers that
// survived a restart. Ports outside the range are ignored.
func (a *PortAllocator) Reserve(port int) {
	if port < a.min || port > a.max {
		return
	}
	a.mu.Lock()
	a.used[port] = struct{}{}
	a.mu.Unlock()
}

// Release returns port to the pool. Unknown ports are ignored.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	delete(a.used, port)
	a.mu.Unlock()
}

// InUse returns the number of reserved ports.
func (a *PortAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.used)
}

func canBind(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
