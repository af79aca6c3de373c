package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/puppy86/CS-Node/identity"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cs.ini", `
[hostInput]
ip = 127.0.0.1
port = 9001

[hostOutput]
ip = 0.0.0.0
port = 9002

[server]
ip = 10.0.0.1
port = 80
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HostInput.Addr() != "127.0.0.1:9001" {
		t.Fatalf("unexpected hostInput: %+v", cfg.HostInput)
	}
	if cfg.HostOutput.Addr() != "0.0.0.0:9002" {
		t.Fatalf("unexpected hostOutput: %+v", cfg.HostOutput)
	}
	if cfg.Server.Addr() != "10.0.0.1:80" {
		t.Fatalf("unexpected server: %+v", cfg.Server)
	}
	if cfg.DataDir != dir {
		t.Fatalf("expected DataDir %q, got %q", dir, cfg.DataDir)
	}
}

func TestLoadMissingSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cs.ini", `
[hostInput]
ip = 127.0.0.1
port = 9001
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing section")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cs.ini", `
[hostInput]
ip = 127.0.0.1
port = notaport

[hostOutput]
ip = 0.0.0.0
port = 9002

[server]
ip = 10.0.0.1
port = 80
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
}

func TestLoadMissingIP(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cs.ini", `
[hostInput]
port = 9001

[hostOutput]
ip = 0.0.0.0
port = 9002

[server]
ip = 10.0.0.1
port = 80
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing ip")
	}
}

func TestLoadPublicKeySuccess(t *testing.T) {
	dir := t.TempDir()
	text := strings.Repeat("A", 44)
	path := writeFile(t, dir, "PublicKey.txt", text+"\n")

	key, gotText, err := LoadPublicKey(path)
	if err != nil {
		t.Fatalf("LoadPublicKey: %v", err)
	}
	if gotText != text {
		t.Fatalf("expected trimmed text %q, got %q", text, gotText)
	}
	want := identity.PublicKeyFromString(text)
	if key != want {
		t.Fatal("LoadPublicKey should derive the same key as PublicKeyFromString")
	}
}

func TestLoadPublicKeyWrongLength(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "PublicKey.txt", "tooshort")
	if _, _, err := LoadPublicKey(path); err == nil {
		t.Fatal("expected an error for a wrong-length key")
	}
}
