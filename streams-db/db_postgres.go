//go:build postgres
// +build postgres

package main

// This file is needed for conditional compilation. It's used when
// the build tag 'postgres' is defined. Otherwise the adapter is not compiled.

import (
	_ "github.com/relaynet/streams/server/db/postgres"
)
