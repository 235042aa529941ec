// Package directory loads the static, closed user directory
// (SPEC_FULL.md §4.9) that seeds the location table at startup. The
// distilled spec treats this as an external collaborator ("hard-coded
// list... the directory is closed"); this expansion gives it a real,
// testable loader instead of a literal in source.
package directory

import (
	"fmt"
	"os"

	"github.com/tinysip/b2bua/internal/location"
	"github.com/tinysip/b2bua/internal/sipmsg"
	"gopkg.in/yaml.v3"
)

// User is one directory entry as it appears in the YAML seed file.
type User struct {
	Username string `yaml:"username"`
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
}

type file struct {
	Users []User `yaml:"users"`
}

// DefaultSeed mirrors the six users statically seeded in the original
// implementation this spec was distilled from
// (_examples/original_source/src/sip_defs.rs, LOCATION_ENTRIES). It's used
// when no directory file is configured, so the server still boots with a
// closed, non-empty user set.
var DefaultSeed = []User{
	{Username: "1001", IP: "192.168.32.10", Port: 5060},
	{Username: "1002", IP: "192.168.32.10", Port: 5070},
	{Username: "1003", IP: "192.168.1.103", Port: 5060},
	{Username: "1004", IP: "192.168.1.104", Port: 5060},
	{Username: "1005", IP: "192.168.184.1", Port: 5060},
	{Username: "1006", IP: "192.168.184.1", Port: 5070},
}

// Load reads and validates a directory YAML file, returning seed entries
// ready for location.New. A malformed file (duplicate username, empty
// username, username too long, unreadable file) is a fatal startup error —
// there's no dialog traffic yet to protect.
func Load(path string) ([]location.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: reading %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("directory: parsing %s: %w", path, err)
	}

	return validate(f.Users)
}

// Default returns the built-in seed as location entries, for deployments
// that haven't supplied a directory file.
func Default() []location.Entry {
	entries, err := validate(DefaultSeed)
	if err != nil {
		// DefaultSeed is a compile-time constant under our control; a
		// validation failure here is a programmer error, not a runtime one.
		panic(fmt.Sprintf("directory: built-in default seed is invalid: %v", err))
	}
	return entries
}

func validate(users []User) ([]location.Entry, error) {
	seen := make(map[string]bool, len(users))
	entries := make([]location.Entry, 0, len(users))

	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("directory: empty username")
		}
		if len(u.Username) >= sipmsg.MaxUsernameLength {
			return nil, fmt.Errorf("directory: username %q exceeds max length %d", u.Username, sipmsg.MaxUsernameLength)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("directory: duplicate username %q", u.Username)
		}
		seen[u.Username] = true

		entries = append(entries, location.Entry{
			Username: u.Username,
			IPStr:    u.IP,
			Port:     u.Port,
		})
	}
	return entries, nil
}
