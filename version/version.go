// Package version pins the module versions written into patched manifests.
package version

// Module is the import path of this module, which also hosts the runtime.
const Module = "github.com/gnolang/gobfus"

// Runtime is the version of Module required by rewritten projects.
// Release builds override it with -ldflags -X.
var Runtime = "v0.1.0"

// CryptoModule backs the protection primitive of the runtime.
const CryptoModule = "golang.org/x/crypto"

// Crypto is the version of CryptoModule required by rewritten projects.
var Crypto = "v0.46.0"

// Requires lists the companion dependencies, in patch order.
func Requires() [][2]string {
	return [][2]string{
		{Module, Runtime},
		{CryptoModule, Crypto},
	}
}
