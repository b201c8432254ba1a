package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content using Go's
// standard library, exactly as the teacher's pkg/config/envexpand.go does.
// Missing variables expand to empty string; Validate catches required
// fields left empty this way.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
