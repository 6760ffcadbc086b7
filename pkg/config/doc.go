// Package config loads the guardrails service configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file
// and GUARDRAILS_* environment variables, where nested keys join with an
// underscore:
//
//	server:
//	  addr: ":9090"
//	store:
//	  driver: sqlite
//	  path: /var/lib/guardrails/guardrails.db
//	policies:
//	  builtin: true
//	  paths: [/etc/guardrails/policies]
//
//	GUARDRAILS_STORE_DRIVER=memory GUARDRAILS_ENGINE_PARALLELISM=4 guardrails serve
//
// The loaded configuration is validated with go-playground/validator and
// each section's own Validate method.
package config
