// Package conf loads, validates, and saves the treacle configuration file.
package conf

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"treacle/internal/flog"
	"treacle/internal/pkg/buffer"
)

const (
	DefaultListenPort     = 7569
	DefaultBytesPerSecond = 3225
	DefaultDialTimeout    = "10s"
)

type Log struct {
	Level string `yaml:"level"`
}

// Conf mirrors the YAML config file. Raw string fields carry a trailing
// underscore; their parsed twins are filled in by validate.
type Conf struct {
	ListenPort      int    `yaml:"listen_port"`
	Destination_    string `yaml:"destination"`
	BytesPerSecond_ *int   `yaml:"bytes_per_second"`
	DialTimeout_    string `yaml:"dial_timeout"`
	ChunkSize       int    `yaml:"chunk_size"`
	Log             Log    `yaml:"log"`

	// Destination is the dialable host:port derived from Destination_.
	Destination    string        `yaml:"-"`
	BytesPerSecond int           `yaml:"-"`
	DialTimeout    time.Duration `yaml:"-"`
}

func (c *Conf) setDefaults() {
	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}
	if c.BytesPerSecond_ == nil {
		// An explicit 0 means unlimited; only an absent key gets the
		// default modem-speed ceiling.
		v := DefaultBytesPerSecond
		c.BytesPerSecond_ = &v
	}
	if c.DialTimeout_ == "" {
		c.DialTimeout_ = DefaultDialTimeout
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = buffer.DefaultChunkSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Conf) validate() []error {
	var errs []error

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listen_port %d out of range 1-65535", c.ListenPort))
	}

	if *c.BytesPerSecond_ < 0 {
		errs = append(errs, fmt.Errorf("bytes_per_second must not be negative, got %d", *c.BytesPerSecond_))
	} else {
		c.BytesPerSecond = *c.BytesPerSecond_
	}

	if c.ChunkSize < 256 || c.ChunkSize > 1<<16 {
		errs = append(errs, fmt.Errorf("chunk_size %d out of range 256-65536", c.ChunkSize))
	}

	dur, err := time.ParseDuration(c.DialTimeout_)
	if err != nil {
		errs = append(errs, fmt.Errorf("dial_timeout: %w", err))
	} else {
		c.DialTimeout = dur
	}

	if c.Destination_ == "" {
		errs = append(errs, errors.New("destination is required"))
	} else {
		addr, err := dialAddr(c.Destination_)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.Destination = addr
		}
	}

	if _, err := flog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// Finalize applies defaults and validates, filling the parsed twin fields.
// Used both after unmarshalling and for configs assembled in code.
func (c *Conf) Finalize() error {
	c.setDefaults()
	if errs := c.validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// dialAddr derives the host:port to dial from a destination URL or a bare
// host[:port]. A URL without a port defaults from its scheme (http 80,
// https 443); a bare host defaults to port 80.
func dialAddr(dest string) (string, error) {
	if strings.Contains(dest, "://") {
		u, err := url.Parse(dest)
		if err != nil {
			return "", fmt.Errorf("destination %q: %w", dest, err)
		}
		if u.Hostname() == "" {
			return "", fmt.Errorf("destination %q: missing host", dest)
		}
		port := u.Port()
		if port == "" {
			switch u.Scheme {
			case "http":
				port = "80"
			case "https":
				port = "443"
			default:
				return "", fmt.Errorf("destination %q: no port and unknown scheme %q", dest, u.Scheme)
			}
		}
		return net.JoinHostPort(u.Hostname(), port), nil
	}

	host, port, err := net.SplitHostPort(dest)
	if err != nil {
		// Only a genuinely missing port falls back to the HTTP default;
		// anything else (too many colons, stray brackets) is malformed.
		var aerr *net.AddrError
		if errors.As(err, &aerr) && strings.Contains(aerr.Err, "missing port") {
			return net.JoinHostPort(dest, "80"), nil
		}
		return "", fmt.Errorf("destination %q: %w", dest, err)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("destination %q: invalid port %q", dest, port)
	}
	return net.JoinHostPort(host, port), nil
}

// Parse unmarshals, defaults, and validates a YAML config document.
func Parse(data []byte) (*Conf, error) {
	var c Conf
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ReadFile unmarshals the config file without applying defaults or
// validating, so callers can layer overrides before Finalize.
func ReadFile(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Conf
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Load reads, defaults, and validates the config file at path.
func Load(path string) (*Conf, error) {
	c, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the config back out as YAML.
func (c *Conf) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
