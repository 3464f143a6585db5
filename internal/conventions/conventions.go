package conventions

import "path/filepath"

const (
	// DataDirName is the per-user directory trackd keeps its state in.
	DataDirName = ".trackd"
	// DBFileName is the SQLite database file inside the data directory.
	DBFileName = "trackd.db"
	// GatewayConfigFileName is the gateway ruleset file inside the data
	// directory.
	GatewayConfigFileName = "gateway.yaml"

	// DefaultHubAddr is the default listen address of the message hub.
	DefaultHubAddr = ":7321"
	// DefaultGatewayAddr is the default listen address of the caching gateway.
	DefaultGatewayAddr = ":7322"

	// SyncTagBackground is the periodic sweep trigger tag.
	SyncTagBackground = "background-sync"
	// SyncTagNotification is the one-shot sweep trigger tag.
	SyncTagNotification = "notification-sync"
)

// DBPath returns the database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFileName)
}

// GatewayConfigPath returns the gateway ruleset path inside a data directory.
func GatewayConfigPath(dataDir string) string {
	return filepath.Join(dataDir, GatewayConfigFileName)
}
