// Package config loads the StreamKit configuration.
//
// A configuration is built from defaults, then one or more YAML or JSON file
// layers deep-merged in order, then STREAMKIT_* environment overrides. Every
// file layer is checked against an embedded JSON schema before it is merged,
// so unknown keys and wrongly typed values are reported against the file that
// contains them. Validate runs the semantic checks of each section.
//
//	loader := config.NewLoader()
//	loader.AddLayer("streamkit.yaml")
//	loader.AddLayer("streamkit.local.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// SafeConfig gives goroutine-safe access to a configuration that may be
// replaced at runtime.
package config
