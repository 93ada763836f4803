// Package plugins installs launcher plugin packages and manages their
// execution hosts.
//
// # Overview
//
// A plugin package is a zip archive (.fcp) holding a manifest, JavaScript
// sources, assets and an optional metadata.json written by the packager.
// The Loader decodes and validates packages; the Manager owns installed
// plugins, runs their commands in isolated hosts and forwards UI events.
//
// # Package Loading
//
// Manifest lookup order: plugin.json, manifest.json, plugin.yaml
// Required fields: name, version, description, author (all missing ones are reported)
// Integrity: metadata checksum and host version produce warnings unless StrictIntegrity is set
// Persistence: archives are saved in a storage.PackageStore and restored on start
//
// # Plugin Lifecycle
//
//	registered -> loading -> ready -> error | unloaded
//
// Hosts start lazily on the first command. At most MaxWorkers hosts run; when
// all slots are taken the least recently used idle host is unloaded. A plugin
// in the error state is retried by executing it again.
//
// # Usage Example
//
//	manager := plugins.NewManager(plugins.Config{Logger: log})
//	loader := plugins.NewLoader(plugins.LoaderConfig{}, manager, log)
//
//	plugin, err := loader.LoadFile(ctx, "todo.fcp")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := manager.ExecuteCommand(ctx, plugin.ID, "default", nil)
//	fmt.Println(result.View.ID) // plugin-root
//
// # Events
//
// Subscribe to the manager's bus for lifecycle, command and host API events:
//
//	unsubscribe := manager.Subscribe(func(ev plugins.Event) {
//		fmt.Println(ev.Type, ev.PluginID)
//	}, plugins.EventCommandExecuted, plugins.EventToast)
//	defer unsubscribe()
//
// # Related Packages
//
//   - pkg/worker: execution hosts
//   - pkg/capability: host API served to plugins
//   - pkg/cache: the component, template, asset and metadata caches
package plugins
