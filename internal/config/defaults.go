package config

const (
	defaultConfigPath             = "~/.config/leadswiper/config.toml"
	defaultStateDir               = "~/.local/share/leadswiper"
	defaultLogDir                 = "~/.local/share/leadswiper/logs"
	defaultIdentityFileName       = "worker_id"
	defaultSQLiteFileName         = "leads.db"
	defaultStoreDriver            = DriverSQLite
	defaultRemoteURL              = "http://127.0.0.1:7488"
	defaultRequestTimeoutSeconds  = 10
	defaultAPIBind                = "127.0.0.1:7488"
	defaultLeaseDurationSeconds   = 300
	defaultRenewIntervalSeconds   = 120
	defaultAcquireConcurrency     = 8
	defaultTeardownTimeoutSeconds = 3
	defaultBatchSize              = 50
	defaultSortKey                = "avg_upvotes"
	defaultUndoDepth              = 100
	defaultPersistAttempts        = 3
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Store: Store{
			Driver:             defaultStoreDriver,
			RemoteURL:          defaultRemoteURL,
			RequestTimeoutSecs: defaultRequestTimeoutSeconds,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Leases: Leases{
			DurationSeconds:      defaultLeaseDurationSeconds,
			RenewIntervalSeconds: defaultRenewIntervalSeconds,
			AcquireConcurrency:   defaultAcquireConcurrency,
			TeardownTimeoutSecs:  defaultTeardownTimeoutSeconds,
		},
		Review: Review{
			BatchSize:       defaultBatchSize,
			SortKey:         defaultSortKey,
			UndoDepth:       defaultUndoDepth,
			PersistAttempts: defaultPersistAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
