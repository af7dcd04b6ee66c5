package config

import (
	"flag"
	"os"
	"time"

	"github.com/allenzhangsg/rbac/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-s string   token signing secret
//	-t int      token validity, minutes
//	-m string   authorization mode: "capability" or "role"
//	-k string   store backend: "memory", "dynamo" or "postgres"
//	-n string   DynamoDB users table name
//	-g string   AWS region
//	-e string   AWS base endpoint override (e.g., "http://127.0.0.1:8000/")
//	-u string   AWS access key id
//	-p string   AWS secret access key
//	-d string   PostgreSQL DSN
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. The duration
// flag is accepted as an integer in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-t", "-m", "-k", "-n", "-g", "-e", "-u", "-p", "-d"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing secret")

	tokenValidityDuration := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	fs.StringVar(&config.AuthzMode, "m", config.AuthzMode, "authorization mode")
	fs.StringVar(&config.StoreBackend, "k", config.StoreBackend, "store backend")
	fs.StringVar(&config.UsersTable, "n", config.UsersTable, "users table name")
	fs.StringVar(&config.AWSRegion, "g", config.AWSRegion, "AWS region")
	fs.StringVar(&config.AWSBaseEndpoint, "e", config.AWSBaseEndpoint, "AWS base endpoint")
	fs.StringVar(&config.AWSAccessKeyID, "u", config.AWSAccessKeyID, "AWS access key id")
	fs.StringVar(&config.AWSSecretAccessKey, "p", config.AWSSecretAccessKey, "AWS secret access key")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidityDuration) * time.Minute
}
