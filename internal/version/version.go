// ABOUTME: Product and version identification
// ABOUTME: Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
package version

// Version is the release version, "dev" for local builds
var Version = "dev"

const (
	Product      = "Berkeley Clock Sync"
	Manufacturer = "berkeley-go"
)

// String returns "Product Version"
func String() string {
	return Product + " " + Version
}
