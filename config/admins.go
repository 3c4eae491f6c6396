package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// AdminSeed is the admin seed file: factory admins granted at startup.
//
//	admins:
//	  - "0x5b38da6a701c568545dcfcb03fcb875f56beddc4"
type AdminSeed struct {
	Admins []string `yaml:"admins"`
}

// LoadAdmins reads and parses the admin seed file at path.
func LoadAdmins(path string) ([]common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read admin seed: %w", err)
	}
	return ParseAdmins(data)
}

// ParseAdmins parses admin seed YAML, dropping duplicates.
func ParseAdmins(data []byte) ([]common.Address, error) {
	var seed AdminSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse admin seed: %w", err)
	}
	seen := make(map[common.Address]struct{}, len(seed.Admins))
	admins := make([]common.Address, 0, len(seed.Admins))
	for i, raw := range seed.Admins {
		addr, err := ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("admin %d: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		admins = append(admins, addr)
	}
	return admins, nil
}
