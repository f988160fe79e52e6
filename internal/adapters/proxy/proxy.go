// Package proxy implements the plain-text proxy list loader (A5): one
// proxy URL per line, served round-robin. An empty list is a fatal
// start-up error, never a runtime one.
package proxy

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
)

// List is a round-robin cycle over a fixed slice of proxy URLs.
type List struct {
	proxies []string
	next    atomic.Uint64
}

// LoadFile reads one proxy URL per line from path, skipping blank lines
// and lines starting with "#".
func LoadFile(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ConfigError{Msg: fmt.Sprintf("open proxy list %s", path), Err: err}
	}
	defer f.Close()

	var proxies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.ConfigError{Msg: fmt.Sprintf("read proxy list %s", path), Err: err}
	}
	if len(proxies) == 0 {
		return nil, &domain.ConfigError{Msg: fmt.Sprintf("proxy list %s is empty", path)}
	}
	return &List{proxies: proxies}, nil
}

// Next returns the next proxy URL in round-robin order.
func (l *List) Next() string {
	i := l.next.Add(1) - 1
	return l.proxies[int(i%uint64(len(l.proxies)))]
}

// Len returns the number of distinct proxies loaded.
func (l *List) Len() int { return len(l.proxies) }

var _ ports.ProxySource = (*List)(nil)
