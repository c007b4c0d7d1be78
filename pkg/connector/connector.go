// Package connector registers all relay connectors.
package connector

import (
	// Import all connectors to register them
	_ "github.com/opsrelay/relay-core/internal/archive"
	_ "github.com/opsrelay/relay-core/internal/connector/azfiles"
	_ "github.com/opsrelay/relay-core/internal/connector/azrsv"
	_ "github.com/opsrelay/relay-core/internal/connector/github"
	_ "github.com/opsrelay/relay-core/internal/connector/graph"
	_ "github.com/opsrelay/relay-core/internal/connector/ldapdir"
	_ "github.com/opsrelay/relay-core/internal/connector/meraki"
	_ "github.com/opsrelay/relay-core/internal/connector/nagios"
	_ "github.com/opsrelay/relay-core/internal/connector/sdp"
	_ "github.com/opsrelay/relay-core/internal/connector/ukg"
)

// All imports trigger init() functions that register connectors.
