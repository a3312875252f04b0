package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/babelcloud/mkvblock/matroska"
)

var v *viper.Viper

func init() {
	v = viper.New()

	v.SetDefault("block.lacing", matroska.LacingAuto.String())
	v.SetDefault("block.policy", matroska.PolicySimpleAuto.String())
	v.SetDefault("block.max_frames", matroska.PreferredLacedFrames)
	v.SetDefault("track.timestamp_scale", 1)
	v.SetDefault("log.level", "info")

	v.AutomaticEnv()
	v.BindEnv("block.lacing", "MKVBLOCK_LACING")
	v.BindEnv("block.policy", "MKVBLOCK_POLICY")
	v.BindEnv("block.max_frames", "MKVBLOCK_MAX_FRAMES")
	v.BindEnv("track.timestamp_scale", "MKVBLOCK_TIMESTAMP_SCALE")
	v.BindEnv("log.level", "MKVBLOCK_LOG_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		filepath.Join(xdg.ConfigHome, "mkvblock"),
		"/etc/mkvblock",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// GetLacing returns the default lacing for new blocks
func GetLacing() (matroska.Lacing, error) {
	return matroska.ParseLacing(v.GetString("block.lacing"))
}

// GetPolicy returns the handle policy
func GetPolicy() (matroska.Policy, error) {
	return matroska.ParsePolicy(v.GetString("block.policy"))
}

// GetMaxFrames returns the number of frames laced into one block, clamped to
// what a lace count byte can hold.
func GetMaxFrames() int {
	n := v.GetInt("block.max_frames")
	if n <= 0 {
		return matroska.PreferredLacedFrames
	}
	if n > matroska.MaxLacedFrames {
		return matroska.MaxLacedFrames
	}
	return n
}

// GetTimestampScale returns the track timestamp scale in cluster ticks
func GetTimestampScale() (uint64, error) {
	scale := v.GetInt64("track.timestamp_scale")
	if scale <= 0 {
		return 0, errors.Errorf("timestamp scale must be positive, got %d", scale)
	}
	return uint64(scale), nil
}

// GetLogLevel returns the configured slog level
func GetLogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v.GetString("log.level")))); err != nil {
		return slog.LevelInfo, errors.Wrap(err, "log level")
	}
	return level, nil
}

// ConfigFile returns the config file in use, or an empty string
func ConfigFile() string {
	return v.ConfigFileUsed()
}
