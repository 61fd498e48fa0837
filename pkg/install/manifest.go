package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"src.swiftkernel.dev/pkg/preprocess"
)

const manifestTemplate = `// swift-tools-version:4.2
import PackageDescription
let package = Package(
    name: "%[1]s",
    products: [
        .library(
            name: "%[1]s",
            type: .dynamic,
            targets: ["%[1]s"]),
    ],
    dependencies: [%[2]s],
    targets: [
        .target(
            name: "%[1]s",
            dependencies: [%[3]s],
            path: ".",
            sources: ["%[1]s.swift"]),
    ])
`

// manifest returns the content of Package.swift for packages.
func manifest(packages []preprocess.Package) string {
	var specs, products strings.Builder
	for _, pkg := range packages {
		fmt.Fprintf(&specs, "%s,\n", pkg.Spec)
		for _, product := range pkg.Products {
			quoted, _ := json.Marshal(product)
			fmt.Fprintf(&products, "%s,\n", quoted)
		}
	}
	return fmt.Sprintf(manifestTemplate, productName, specs.String(), products.String())
}

func writeManifest(dir string, packages []preprocess.Package) error {
	err := os.WriteFile(filepath.Join(dir, "Package.swift"), []byte(manifest(packages)), 0644)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, productName+".swift"),
		[]byte("// intentionally blank\n"), 0644)
}
