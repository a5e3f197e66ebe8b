// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the relay configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the SIGNAL_RELAY_CONFIG environment variable (via
// [Load]). Files ending in .json or .jsonc are parsed as JSON with
// comments and trailing commas; anything else is YAML. Values not set
// in the file keep their [Default].
//
// After loading, ${HOME}, ${MESSAGES_ROOT}, ${STATE_DIR} and
// ${VAR:-default} patterns in path fields are expanded. Download URL
// templates use the {version} placeholder, substituted per release by
// [ArtifactConfig.DownloadURL].
//
// The resulting [Config] is built once in main and handed to every
// component constructor; nothing in the relay reads configuration from
// globals.
//
// This package depends on no other relay packages.
package config
