package session

import (
	"fmt"
	"net/url"
	"os"
	"os/user"
	"strings"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

// ParseEndpoint splits an endpoint of the form [user@]url into its user and
// normalized URL. Both "alice@http://host:8081" and "http://alice@host:8081"
// are accepted. Without a user prefix the invoking OS user is returned.
//
// The URL keeps protocol, host, port and path; trailing slashes are removed
// and a missing scheme defaults to http.
func ParseEndpoint(raw string) (string, string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty endpoint", errdefs.ErrValidation)
	}

	parts := strings.Split(trimmed, "@")
	var name, endpoint string
	switch len(parts) {
	case 1:
		endpoint = parts[0]
	case 2:
		name, endpoint = parts[0], parts[1]
		// scheme://user@host form
		if i := strings.Index(name, "://"); i >= 0 {
			name, endpoint = name[i+3:], name[:i+3]+endpoint
		}
		if name == "" {
			return "", "", fmt.Errorf("%w: empty user in %q", errdefs.ErrMalformedEndpoint, raw)
		}
	default:
		return "", "", fmt.Errorf("%w: %q", errdefs.ErrMalformedEndpoint, raw)
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", errdefs.ErrMalformedEndpoint, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", errdefs.ErrMalformedEndpoint, u.Scheme)
	}

	if name == "" {
		name = currentUser()
	}
	return name, endpoint, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		// Windows usernames come back as DOMAIN\user.
		if i := strings.LastIndex(u.Username, `\`); i >= 0 {
			return u.Username[i+1:]
		}
		return u.Username
	}
	for _, key := range []string{"USER", "LOGNAME", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
