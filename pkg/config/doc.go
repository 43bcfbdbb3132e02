// Package config loads service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// PUBLISHGATE_CONFIG_FILE, then environment variables. A .env file in the
// working directory is loaded into the environment first and never overrides
// variables that are already set.
//
// Required:
//
//	NPM_TOKEN="npm_..."            # service credential used for every relayed write
//	NPM_OTP_SECRET="JBSWY3DP..."   # base32 TOTP secret for the npm-otp header
//
// Login website:
//
//	LOGIN_ENABLED="yes-this-is-a-login-server"
//	LOGIN_URL="https://login.example.com"
//	GITHUB_CLIENT_ID=... GITHUB_CLIENT_SECRET=... SESSION_SECRET=...
//
// Storage:
//
//	PUBLISHGATE_STORAGE_TYPE="postgres"  # memory, postgres, sqlite
//	PUBLISHGATE_POSTGRES_URL="postgres://localhost/publishgate?sslmode=disable"
//	PUBLISHGATE_REDIS_URL="redis://localhost:6379"  # optional, holds login handoffs
//	PUBLISHGATE_SWEEP_SCHEDULE="@every 10m"
//
// A YAML file uses the same structure as Config:
//
//	server:
//	  port: "8080"
//	storage:
//	  type: sqlite
//	  sqlite_path: /var/lib/publishgate/keys.db
package config
