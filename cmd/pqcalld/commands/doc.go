// Package commands defines the pqcalld CLI.
//
// Commands
//
//   - serve          Run the routing core until interrupted
//   - token issue    Issue a token and print its QR payload
//   - token revoke   Revoke a token, optionally with a grace period
//   - token cleanup  Purge expired and retained-revoked tokens
//
// # Implementation
//
// The root command loads the YAML config and builds the full dependency
// graph before any subcommand runs, so handlers share one wired app.
package commands
