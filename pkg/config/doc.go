// Package config loads attachd's startup configuration from YAML.
//
// Load is called once by cmd/attachd; nothing in pkg/service or
// pkg/reconciler re-reads the file, since background loops must not depend
// on disk state changing under them.
package config
