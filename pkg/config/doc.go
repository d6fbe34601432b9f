// Package config provides configuration management for the KageForge gateway.
//
// Configuration is read once at startup from a YAML file and treated as an
// immutable snapshot. There is no package-level instance: callers load a
// *Config and pass the relevant sections to the components they construct.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("kageforge.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("kageforge.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention KAGEFORGE_SECTION_FIELD:
//
//   - KAGEFORGE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - KAGEFORGE_BUDGET_DAILY overrides budget.daily
//   - KAGEFORGE_PROVIDER_OPENAI_PRIMARY_API_KEY overrides the api_key of the
//     provider named "openai-primary"
//
// # Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast, reporting every invalid field)
//
// Providers are declared as a list. Their order is the router's tie-break
// order, so it is preserved exactly as written.
package config
