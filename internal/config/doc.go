// Package config defines the alarm silencer settings and helpers to load,
// validate and save them in YAML format.
//
// Secrets can stay out of the YAML file: a .env file next to it and the
// BLYNK_TOKEN environment variable both provide the Blynk token.
package config
