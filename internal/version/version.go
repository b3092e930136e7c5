// ABOUTME: Version constants for the Spindeck client and server
// ABOUTME: Single source of truth for identification strings
package version

const (
	// Version is the software version reported in handshakes.
	Version = "0.1.0"

	// Product is the product name reported in handshakes.
	Product = "Spindeck Sync"

	// Manufacturer identifies the project.
	Manufacturer = "Spindeck"
)
