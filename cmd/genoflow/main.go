/*
 *  main.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"log"

	"github.com/genoflow/genoflow"
	"github.com/op/go-logging"
)

// main is the entrypoint for the entire program, routes to commands
func main() {
	logging.SetBackend(genoflow.BackendFormatter)
	if err := Execute(); err != nil {
		log.Fatal(err)
	}
}
