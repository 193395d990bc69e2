package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SettingsFlag names the flag holding the settings file path. It is read
// directly rather than through viper.
const SettingsFlag = "settings"

// BindFlags registers the flags common to every node command and binds
// them to their settings keys, so a set flag wins over the file and the
// environment.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String(SettingsFlag, "", "path to a YAML settings file")
	fs.String("config-dir", DefaultConfigDir, "directory holding router-<n>.txt and host-<n>.txt")
	fs.String("listen", "", "local UDP address to bind (default 0.0.0.0:<port>)")
	fs.Uint16("port", DefaultPort, "real UDP port of nodes")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-file", "", "also write logs to this rotating file")

	for key, flag := range map[string]string{
		"config_dir": "config-dir",
		"listen":     "listen",
		"port":       "port",
		"log.level":  "log-level",
		"log.file":   "log-file",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}
