// Package blueprint loads component graphs from YAML, JSON and CUE files.
//
// A Parser decodes one file. CUE files are unified with a built-in schema, so
// a blueprint may declare its components as a list or as a struct keyed by
// component id:
//
//	components: {
//		"orders-db": {
//			type: "database"
//			properties: encryption_enabled: false
//		}
//	}
//
// A FileProvider serves a directory of blueprint files to the engine by id
// and, once Watch is running, drops cached graphs whose files change.
package blueprint
