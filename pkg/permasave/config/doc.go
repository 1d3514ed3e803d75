/*
Package config loads permasave configuration from the environment or from
YAML/JSON files.

# Overview

Config is a plain immutable struct. There is no process-wide singleton:
construct one, validate it, and pass it to permasave.Open (or wire the store
and manager yourself).

# Environment

All fields map to PERMASAVE_* variables:

	cfg, err := config.FromEnv()
	if err != nil {
	    log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
	    log.Fatal(err)
	}

Recognized variables:

	PERMASAVE_STORE_URL          base URL of the blob store API (required)
	PERMASAVE_STORE_TOKEN        bearer credential (required)
	PERMASAVE_REQUEST_TIMEOUT    per-request timeout, default "30s"
	PERMASAVE_RETRY              enable backoff on idempotent requests
	PERMASAVE_RETRY_MAX_ELAPSED  total retry budget, default "1m"
	PERMASAVE_FETCH_CONCURRENCY  parallel fetches during listing, default 4
	PERMASAVE_VERBOSE            debug-level logging

# File Loading

Load configuration from YAML or JSON files:

	cfg, err := config.FromFile("permasave.yaml")

Durations are written as strings ("30s", "1m30s") in both formats.
*/
package config
