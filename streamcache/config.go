package streamcache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/c360/streamkit/errors"
)

const (
	// DefaultSpoolThreshold is the in-memory limit before spooling to disk
	DefaultSpoolThreshold int64 = 128 * 1024
	// DefaultBufferSize is the copy buffer size used when draining sources
	DefaultBufferSize = 4096
	// uuidPlaceholder in SpoolDirectory is replaced by a random id on start
	uuidPlaceholder = "#uuid#"
)

// Config controls when stream caches spill to disk and how.
type Config struct {
	// Enabled turns stream caching on for consumers that read stream bodies.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// SpoolDirectory is where spool files are created. "#uuid#" is replaced
	// with a random id so concurrent processes do not share a directory.
	SpoolDirectory string `json:"spool_directory" yaml:"spool_directory"`

	// SpoolThreshold in bytes. Bodies larger than this are spooled.
	// A negative value disables spooling, zero means the default.
	SpoolThreshold int64 `json:"spool_threshold" yaml:"spool_threshold"`

	// SpoolCipher is a transformation such as "AES/CBC/PKCS5Padding".
	// Empty leaves spool files unencrypted.
	SpoolCipher string `json:"spool_cipher" yaml:"spool_cipher"`

	// BufferSize used when copying into and out of spool files.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// RemoveSpoolDirectoryWhenStopping deletes the spool directory on Stop.
	RemoveSpoolDirectoryWhenStopping bool `json:"remove_spool_directory_when_stopping" yaml:"remove_spool_directory_when_stopping"`
}

// DefaultConfig returns the default stream caching configuration
func DefaultConfig() Config {
	return Config{
		Enabled:                          true,
		SpoolDirectory:                   filepath.Join(os.TempDir(), "streamkit", "streamkit-tmp-"+uuidPlaceholder),
		SpoolThreshold:                   DefaultSpoolThreshold,
		BufferSize:                       DefaultBufferSize,
		RemoveSpoolDirectoryWhenStopping: true,
	}
}

// withDefaults fills zero values from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SpoolDirectory == "" {
		c.SpoolDirectory = def.SpoolDirectory
	}
	if c.SpoolThreshold == 0 {
		c.SpoolThreshold = def.SpoolThreshold
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
	return c
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.BufferSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("buffer size %d", c.BufferSize),
			"Config", "Validate", "buffer size cannot be negative")
	}
	if c.SpoolCipher != "" {
		if _, err := parseTransformation(c.SpoolCipher); err != nil {
			return errors.Wrap(err, "Config", "Validate", "spool cipher")
		}
	}
	return nil
}

// SpoolEnabled reports whether bodies may be spooled to disk at all
func (c Config) SpoolEnabled() bool {
	return c.SpoolThreshold > 0
}
