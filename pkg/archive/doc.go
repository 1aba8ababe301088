// Package archive persists fetched records as a browsable JSON
// directory tree. The tree is its own index: rescanning it yields the
// set of archived entities, which is what makes runs resumable.
package archive
