// Package storage provides persistence for the plugin runtime.
//
// # Package archives
//
// PackageStore keeps every installed package archive on disk together with a
// small JSON record (source label, checksum, install time) so installs survive
// restarts:
//
//	<root>/<plugin>/package.fcp
//	<root>/<plugin>/package.json
//
// # Key/value stores
//
// KV backs the LocalStorage and Cache capabilities exposed to plugins. Each
// plugin gets its own namespace. MemoryKV keeps data in process; RedisKV keeps
// each namespace in a Redis hash so data is shared across restarts and hosts.
package storage
