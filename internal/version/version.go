// ABOUTME: Version constants for the LocusQ host and tools
// ABOUTME: Reported in the bridge hello, mDNS TXT records and the dashboard title
package version

const (
	// Version is the release of this build.
	Version = "0.4.0"

	// Product is the name advertised to bridge clients and over mDNS.
	Product = "LocusQ"

	// Manufacturer identifies the publisher of the build.
	Manufacturer = "LocusQ Audio"
)
