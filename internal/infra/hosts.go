package infra

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

const (
	// DefaultHostsPath is the system hosts file.
	DefaultHostsPath = "/etc/hosts"

	hostsBegin   = "# BEGIN focuscage"
	hostsEnd     = "# END focuscage"
	hostsSinkIP  = "0.0.0.0"
	hostsWWWPref = "www."
)

// HostsFileBlocker implements domain.SiteBlocker by owning a marked section
// of a hosts file. Lines outside the section are never touched.
type HostsFileBlocker struct {
	path string
}

// NewHostsFileBlocker creates a blocker for the hosts file at path.
func NewHostsFileBlocker(path string) *HostsFileBlocker {
	if path == "" {
		path = DefaultHostsPath
	}
	return &HostsFileBlocker{path: path}
}

// Block replaces the managed section with entries for domains.
// Each domain is also blocked with a www. prefix.
func (h *HostsFileBlocker) Block(domains []string) error {
	normalized := NormalizeDomains(domains)
	if len(normalized) == 0 {
		return h.Unblock()
	}

	content, mode, err := h.read()
	if err != nil {
		return err
	}
	outside, _ := splitManaged(content)

	var buf bytes.Buffer
	buf.Write(outside)
	if buf.Len() > 0 && !bytes.HasSuffix(outside, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(hostsBegin + "\n")
	for _, d := range normalized {
		fmt.Fprintf(&buf, "%s %s\n", hostsSinkIP, d)
		if !strings.HasPrefix(d, hostsWWWPref) {
			fmt.Fprintf(&buf, "%s %s%s\n", hostsSinkIP, hostsWWWPref, d)
		}
	}
	buf.WriteString(hostsEnd + "\n")

	return h.write(buf.Bytes(), mode)
}

// Unblock removes the managed section.
func (h *HostsFileBlocker) Unblock() error {
	content, mode, err := h.read()
	if err != nil {
		return err
	}
	outside, managed := splitManaged(content)
	if managed == nil {
		return nil
	}
	return h.write(outside, mode)
}

// Blocked returns the domains in the managed section, without the
// generated www. aliases.
func (h *HostsFileBlocker) Blocked() ([]string, error) {
	content, _, err := h.read()
	if err != nil {
		return nil, err
	}
	_, managed := splitManaged(content)

	hosts := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(managed))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == hostsSinkIP {
			hosts[fields[1]] = true
		}
	}

	blocked := make([]string, 0, len(hosts))
	for host := range hosts {
		if base := strings.TrimPrefix(host, hostsWWWPref); base != host && hosts[base] {
			continue
		}
		blocked = append(blocked, host)
	}
	sort.Strings(blocked)
	return blocked, scanner.Err()
}

// Path returns the hosts file path.
func (h *HostsFileBlocker) Path() string {
	return h.path
}

func (h *HostsFileBlocker) read() ([]byte, os.FileMode, error) {
	info, err := os.Stat(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0644, nil
		}
		return nil, 0, err
	}
	content, err := os.ReadFile(h.path)
	if err != nil {
		return nil, 0, err
	}
	return content, info.Mode().Perm(), nil
}

func (h *HostsFileBlocker) write(content []byte, mode os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", h.path, os.Getpid())
	if err := os.WriteFile(tmpPath, content, mode); err != nil {
		return fmt.Errorf("failed to write hosts file: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace hosts file: %w", err)
	}
	return nil
}

// splitManaged separates the managed section from the rest of the file.
// managed is nil when the file has no section.
func splitManaged(content []byte) (outside, managed []byte) {
	start := bytes.Index(content, []byte(hostsBegin))
	if start < 0 {
		return content, nil
	}
	rest := content[start:]
	end := bytes.Index(rest, []byte(hostsEnd))
	if end < 0 {
		// Unterminated section runs to end of file
		return content[:start], rest
	}
	end += len(hostsEnd)
	if end < len(rest) && rest[end] == '\n' {
		end++
	}

	outside = append(append([]byte(nil), content[:start]...), rest[end:]...)
	return outside, rest[:end]
}

// NormalizeDomains lowercases, strips schemes, paths and ports, drops
// empties and duplicates, and sorts the result.
func NormalizeDomains(domains []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if i := strings.Index(d, "://"); i >= 0 {
			d = d[i+3:]
		}
		if i := strings.IndexAny(d, "/?#"); i >= 0 {
			d = d[:i]
		}
		if i := strings.LastIndex(d, ":"); i >= 0 {
			d = d[:i]
		}
		d = strings.Trim(d, ".")
		if d == "" || strings.ContainsAny(d, " \t") || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Ensure HostsFileBlocker implements domain.SiteBlocker.
var _ domain.SiteBlocker = (*HostsFileBlocker)(nil)
