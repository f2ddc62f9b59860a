// Package conf carries the deployment record for the woa23 application.
package conf

import (
	_ "embed"

	"github.com/cywhale/woa23/pkg/ecosystem"
)

// AppName is the label of the managed woa23 process
const AppName = "woa23"

//go:embed ecosystem.yaml
var ecosystemYAML []byte

// EcosystemYAML returns the embedded ecosystem document as written on disk
func EcosystemYAML() []byte {
	return append([]byte(nil), ecosystemYAML...)
}

// Default parses the embedded ecosystem document
func Default() (*ecosystem.Ecosystem, error) {
	return ecosystem.Parse(ecosystemYAML, ecosystem.FormatYAML)
}
