//go:build rethinkdb
// +build rethinkdb

package main

// This file is needed for conditional compilation. It's used when
// the build tag 'rethinkdb' is defined. Otherwise the adapter is not compiled.

import (
	_ "github.com/relaynet/streams/server/db/rethinkdb"
)
