// Package config loads typed configuration structs from environment variables.
//
// Struct fields are annotated with caarlos0/env tags; a local .env file is
// loaded through godotenv the first time any config is requested. Every
// package in this module declares its own Config type so services can load only
// what they use.
package config
