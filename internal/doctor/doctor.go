// Package doctor diagnoses azkit configuration beyond what loading enforces:
// endpoints, session settings and the history database location.
package doctor

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/azkit/internal/config"
	"github.com/mattjoyce/azkit/internal/session"
	"github.com/mattjoyce/azkit/internal/storage"
)

const (
	minTimeout = time.Second
	maxTimeout = 10 * time.Minute
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
	// checkFS reports whether the history database may live at a path.
	checkFS func(path string) error
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, checkFS: storage.CheckLocalFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateState(r)
	d.validateProfiles(r)
	d.warnDefaultProfile(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateState checks that the history database can live where configured.
func (d *Doctor) validateState(r *Result) {
	if err := d.checkFS(d.cfg.StatePath()); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	}
}

// validateProfiles checks each profile endpoint and its session settings.
func (d *Doctor) validateProfiles(r *Result) {
	for _, name := range d.cfg.ProfileNames() {
		p := d.cfg.Profiles[name]
		field := "profiles." + name

		_, endpoint, err := session.ParseEndpoint(p.URL)
		if err != nil {
			d.addError(r, "endpoint", field+".url", err.Error())
			continue
		}
		if !strings.Contains(p.URL, "@") {
			d.addWarning(r, "endpoint", field+".url",
				"no user in endpoint; the local OS user name will be used to log in")
		}
		if u, err := url.Parse(endpoint); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
			d.addWarning(r, "endpoint", field+".url",
				"plain http sends the login password unencrypted; prefer https")
		}

		if p.RefreshAttempts() == 0 {
			d.addWarning(r, "session", field+".max_refresh_attempts",
				"0 disables re-login; commands fail once the session expires")
		}
		switch {
		case p.Timeout > 0 && p.Timeout < minTimeout:
			d.addWarning(r, "session", field+".timeout",
				fmt.Sprintf("timeout %s is very short (< %s)", p.Timeout, minTimeout))
		case p.Timeout > maxTimeout:
			d.addWarning(r, "session", field+".timeout",
				fmt.Sprintf("timeout %s is very long (> %s)", p.Timeout, maxTimeout))
		}
	}
}

// warnDefaultProfile flags configs where remote commands always need -p.
func (d *Doctor) warnDefaultProfile(r *Result) {
	switch {
	case len(d.cfg.Profiles) == 0:
		d.addWarning(r, "profiles", "profiles", "no profiles defined; remote commands need an explicit endpoint")
	case d.cfg.Defaults.Profile == "" && len(d.cfg.Profiles) > 1:
		d.addWarning(r, "profiles", "defaults.profile",
			"several profiles but no default; remote commands need -p or an endpoint")
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
