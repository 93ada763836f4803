// Package watcher installs plugin packages dropped into a directory.
//
// Files with a package extension (.fcp or .zip) that are created or written
// are installed once they have been quiet for a short delay. The file name is
// the plugin's source label.
package watcher
