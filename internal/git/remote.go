package git

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
)

// ErrNoRepository is returned when no .git directory is found above dir.
var ErrNoRepository = errors.New("not inside a git repository")

// DetectRepository finds the enclosing repository of dir, reads its
// .git/config and returns a Repository built from the origin remote URL.
func DetectRepository(dir string) (domain.Repository, error) {
	configPath, err := findConfig(dir)
	if err != nil {
		return domain.Repository{}, err
	}
	f, err := os.Open(configPath)
	if err != nil {
		return domain.Repository{}, fmt.Errorf("could not open .git/config: %w", err)
	}
	defer f.Close()

	var inOrigin bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == `[remote "origin"]` {
			inOrigin = true
			continue
		}
		if inOrigin && strings.HasPrefix(line, "[") {
			break
		}
		if inOrigin && strings.HasPrefix(line, "url") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return ParseRemoteURL(strings.TrimSpace(parts[1]))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Repository{}, fmt.Errorf("reading .git/config: %w", err)
	}
	return domain.Repository{}, errors.New("no origin remote found in .git/config")
}

func findConfig(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(abs, ".git", "config")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNoRepository
		}
		abs = parent
	}
}

// ParseRemoteURL parses a git remote URL and returns a Repository.
// Supports HTTPS (https://gitlab.com/group/sub/project.git), scp-like SSH
// (git@gitlab.com:group/project.git) and ssh:// URLs. ProjectPath keeps every
// namespace segment, so nested groups are preserved.
// The RemoteURL field in the returned Repository preserves the original input URL unchanged.
func ParseRemoteURL(rawURL string) (domain.Repository, error) {
	var host, projectPath string

	switch {
	case strings.Contains(rawURL, "://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return domain.Repository{}, fmt.Errorf("invalid remote URL %s: %w", rawURL, err)
		}
		switch u.Scheme {
		case "https", "http", "ssh":
		default:
			return domain.Repository{}, fmt.Errorf("unsupported remote URL scheme: %s", rawURL)
		}
		host, projectPath = u.Hostname(), u.Path
	case strings.Contains(rawURL, "@") && strings.Contains(rawURL, ":"):
		// scp-like: user@host:path
		_, rest, _ := strings.Cut(rawURL, "@")
		h, p, _ := strings.Cut(rest, ":")
		host, projectPath = h, p
	default:
		return domain.Repository{}, fmt.Errorf("unsupported remote URL format: %s", rawURL)
	}

	projectPath = strings.TrimSuffix(strings.Trim(projectPath, "/"), ".git")
	if host == "" || !strings.Contains(projectPath, "/") {
		return domain.Repository{}, fmt.Errorf("invalid remote URL path: %s", rawURL)
	}
	return domain.Repository{
		Host:        host,
		ProjectPath: projectPath,
		Name:        path.Base(projectPath),
		RemoteURL:   rawURL,
	}, nil
}
