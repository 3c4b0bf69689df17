// Package config loads mock device descriptions.
//
// A device file is YAML describing the controller identity, worker timing
// and one entry per channel. Each channel names a stage profile (MTS25,
// Z825B, CR1, PRM1) that supplies the unit scaling and travel; positions and
// velocities in the file are in the profile's user unit.
//
// Daemon defaults can also come from APT_MOCK_* environment variables,
// optionally loaded from a .env file.
package config
