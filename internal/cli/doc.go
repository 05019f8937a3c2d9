// Package cli turns bert's command line into an app.Config. Document paths
// are positional; flags cover shell recovery, extra variables, env files and
// logging. Parse failures and -h come back as ExitError.
package cli
