package regression

import (
	"embed"
	"io/fs"
)

// rawFixturesFS embeds the offline regression fixture suite so
// GenerateReport works regardless of the caller's working directory.
//
//go:embed testdata/manifest.json
var rawFixturesFS embed.FS

// Fixtures is rawFixturesFS rooted at testdata, so callers pass
// "manifest.json" rather than "testdata/manifest.json" to GenerateReport.
var Fixtures, _ = fs.Sub(rawFixturesFS, "testdata")
