//go:build !vips

package vips

import "github.com/Skryldev/image-host/core"

// Enable is a no-op in builds without the "vips" tag: WebP output stays
// unavailable and the pure-Go WebP decoder remains registered.
func Enable(core.Registry, int, int, int64) (shutdown func(), ok bool) {
	return func() {}, false
}
