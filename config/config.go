// Package config loads a node's INI configuration file and its
// PublicKey.txt key file (spec §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/puppy86/CS-Node/identity"
)

// HostPort is an ip/port pair, the shape every config section shares.
type HostPort struct {
	IP   string
	Port int
}

// Config is the node's parsed INI configuration: the hostInput and
// hostOutput endpoints and the signal server (spec §6).
type Config struct {
	DataDir    string
	HostInput  HostPort
	HostOutput HostPort
	Server     HostPort
}

// Load reads an INI file with sections hostInput, hostOutput, and
// server, each holding ip and port keys (spec §6).
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := &Config{DataDir: filepath.Dir(path)}

	if cfg.HostInput, err = loadHostPort(f, "hostInput"); err != nil {
		return nil, err
	}
	if cfg.HostOutput, err = loadHostPort(f, "hostOutput"); err != nil {
		return nil, err
	}
	if cfg.Server, err = loadHostPort(f, "server"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadHostPort(f *ini.File, section string) (HostPort, error) {
	sec, err := f.GetSection(section)
	if err != nil {
		return HostPort{}, fmt.Errorf("config: missing section [%s]: %w", section, err)
	}
	ip := sec.Key("ip").String()
	port, err := sec.Key("port").Int()
	if err != nil {
		return HostPort{}, fmt.Errorf("config: [%s] invalid port: %w", section, err)
	}
	if ip == "" {
		return HostPort{}, fmt.Errorf("config: [%s] missing ip", section)
	}
	return HostPort{IP: ip, Port: port}, nil
}

// Addr renders "ip:port".
func (h HostPort) Addr() string { return fmt.Sprintf("%s:%d", h.IP, h.Port) }

// LoadPublicKey reads a PublicKey.txt file holding a
// identity.PublicKeyTextLength-character key string and derives the
// node's PublicKey digest from it (spec §3, §6).
func LoadPublicKey(path string) (identity.PublicKey, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return identity.PublicKey{}, "", fmt.Errorf("config: read public key: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if len(text) != identity.PublicKeyTextLength {
		return identity.PublicKey{}, "", fmt.Errorf("config: public key must be %d characters, got %d", identity.PublicKeyTextLength, len(text))
	}
	return identity.PublicKeyFromString(text), text, nil
}
