package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/allenzhangsg/rbac/internal/flagx"
	"github.com/allenzhangsg/rbac/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for the token lifetime, which allows
// parsing both string values such as "30m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	AuthzMode             string         `json:"authz_mode"`
	StoreBackend          string         `json:"store_backend"`
	UsersTable            string         `json:"users_table"`
	AWSRegion             string         `json:"aws_region"`
	AWSBaseEndpoint       string         `json:"aws_base_endpoint"`
	AWSAccessKeyID        string         `json:"aws_access_key_id"`
	AWSSecretAccessKey    string         `json:"aws_secret_access_key"`
	DatabaseDSN           string         `json:"database_dsn"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; if neither
// is set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	config.AuthzMode = c.AuthzMode
	config.StoreBackend = c.StoreBackend
	config.UsersTable = c.UsersTable
	config.AWSRegion = c.AWSRegion
	config.AWSBaseEndpoint = c.AWSBaseEndpoint
	config.AWSAccessKeyID = c.AWSAccessKeyID
	config.AWSSecretAccessKey = c.AWSSecretAccessKey
	config.DatabaseDSN = c.DatabaseDSN
}
