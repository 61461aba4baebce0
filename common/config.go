package common

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable disk geometry. The zero value is unusable;
// start from DefaultConfig and override from a yaml file if one is given.
type Config struct {
	NBlocks   uint32 `yaml:"nblocks"`   // total blocks in the image
	NInodes   uint32 `yaml:"ninodes"`   // inode table entries
	LogBlocks uint32 `yaml:"logblocks"` // journal capacity in blocks
}

func DefaultConfig() *Config {
	return &Config{
		NBlocks:   1024,
		NInodes:   200,
		LogBlocks: 3 * MaxOpBlocks,
	}
}

// LoadConfig reads a yaml override on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.NBlocks == 0 || c.NInodes == 0 || c.LogBlocks < MaxOpBlocks {
		return nil, EBADARG
	}
	return c, nil
}
