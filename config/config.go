// Package config loads Cyparty's service configuration from the environment
// and the optional admin seed file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/CytonicMC/Cyparty/parties"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config is the service configuration.
type Config struct {
	NatsUsername string `env:"NATS_USERNAME"`
	NatsPassword string `env:"NATS_PASSWORD"`
	NatsHostname string `env:"NATS_HOSTNAME" envDefault:"localhost"`
	NatsPort     string `env:"NATS_PORT" envDefault:"4222"`

	SubjectPrefix string `env:"CYPARTY_SUBJECT_PREFIX"`
	MetricsAddr   string `env:"CYPARTY_METRICS_ADDR" envDefault:":8081"`
	DBPath        string `env:"CYPARTY_DB_PATH" envDefault:"cyparty.db"`
	AdminsFile    string `env:"CYPARTY_ADMINS_FILE"`

	Owner        string `env:"CYPARTY_OWNER"`
	FeeRate      uint64 `env:"CYPARTY_FEE_RATE" envDefault:"10"`
	BaseTokenURI string `env:"CYPARTY_BASE_TOKEN_URI"`

	DefaultName          string        `env:"CYPARTY_DEFAULT_NAME" envDefault:"Untitled party"`
	DefaultDeposit       string        `env:"CYPARTY_DEFAULT_DEPOSIT" envDefault:"20000000000000000"`
	DefaultCapacity      uint64        `env:"CYPARTY_DEFAULT_CAPACITY" envDefault:"20"`
	DefaultCoolingPeriod time.Duration `env:"CYPARTY_DEFAULT_COOLING_PERIOD" envDefault:"168h"`
}

// ParseEnv parses environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWithDotEnv reads the dotenv files in paths (".env" when none are
// given) into the environment and then loads Config. Variables already set
// in the environment win. Missing files are not an error.
func LoadWithDotEnv(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Printf("No %s file found, using environment variables", path)
				continue
			}
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Load()
}

// Validate checks the values Load cannot type-check on its own.
func (c Config) Validate() error {
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if c.FeeRate > parties.FeeDenominator {
		return fmt.Errorf("fee rate %d exceeds %d", c.FeeRate, parties.FeeDenominator)
	}
	if _, err := c.Defaults(); err != nil {
		return err
	}
	return nil
}

// OwnerAddress parses the factory owner.
func (c Config) OwnerAddress() (common.Address, error) {
	return ParseAddress(c.Owner)
}

// Defaults returns the values substituted into empty deploy requests.
func (c Config) Defaults() (parties.Defaults, error) {
	deposit, ok := new(big.Int).SetString(strings.TrimSpace(c.DefaultDeposit), 10)
	if !ok || deposit.Sign() <= 0 {
		return parties.Defaults{}, fmt.Errorf("default deposit %q is not a positive integer", c.DefaultDeposit)
	}
	return parties.Defaults{
		Name:          c.DefaultName,
		Deposit:       deposit,
		Capacity:      c.DefaultCapacity,
		CoolingPeriod: c.DefaultCoolingPeriod,
	}, nil
}

// ParseAddress parses a non-zero hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address is not allowed")
	}
	return addr, nil
}
