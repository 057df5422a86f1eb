// Package commands defines the iframe-bridge CLI.
//
// Commands
//
//   - run        Run a flow file against a live page or a captured snapshot
//   - discover   Print the iframe tree of a page
//   - capture    Save a page, iframes inlined, as a redacted HTML snapshot
//   - sanitize   Redact credentials from a recorded HAR file
//
// # Implementation
//
// The root command loads configuration from the environment (and .env) and
// builds the logger before any subcommand runs. Flags given on the command
// line override the matching environment settings.
package commands
