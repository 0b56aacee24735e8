package config

const (
	delimiter = "_"

	EnvPrefix = "MEMO"

	EnvDiskRoot    = EnvPrefix + delimiter + "DISK_ROOT"
	EnvDefaultMode = EnvPrefix + delimiter + "DEFAULT_MODE"
	EnvLogLevel    = EnvPrefix + delimiter + "LOG_LEVEL"
	EnvMaxEntries  = EnvPrefix + delimiter + "MAX_ENTRIES"
	EnvConfigFile  = EnvPrefix + delimiter + "CONFIG"
)
