// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stereoloc/locator/pkg/core"
)

// ExportVersion is bumped whenever FixExport changes incompatibly.
const ExportVersion = 1

// FixExport is the root JSON structure of an export file.
type FixExport struct {
	Version   int        `json:"version"`
	SiteName  string     `json:"siteName"`
	Baseline  float64    `json:"baseline"`
	Site      *SiteJSON  `json:"site,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Fixes     []core.Fix `json:"fixes"`
}

// SiteJSON is the georeference of the exported fixes.
type SiteJSON struct {
	Longitude  float64 `json:"longitude"`
	Latitude   float64 `json:"latitude"`
	Elevation  float64 `json:"elevation"`
	HeadingDeg float64 `json:"headingDeg"`
}

// Export writes the kept fixes, oldest first, and returns the file path.
func (b *Backend) Export() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	export := b.buildExport()

	name := sanitizeName(b.site.Name)
	timestamp := export.StartTime.UTC().Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return "", err
	}

	b.lastExportPath = outputPath
	b.lastExport = core.UploadMetadata{
		SiteName:  b.site.Name,
		FixCount:  len(export.Fixes),
		StartTime: export.StartTime,
		EndTime:   export.EndTime,
		Baseline:  b.site.Baseline,
	}
	b.logger.Info("Exported fixes", "path", outputPath, "fixes", len(export.Fixes))
	return outputPath, nil
}

// buildExport must be called with b.mu held.
func (b *Backend) buildExport() FixExport {
	export := FixExport{
		Version:   ExportVersion,
		SiteName:  b.site.Name,
		Baseline:  b.site.Baseline,
		StartTime: b.firstFix,
		EndTime:   b.lastFix,
		Fixes:     b.fixes.Snapshot(),
	}
	if b.site.Georeferenced {
		export.Site = &SiteJSON{
			Longitude:  b.site.Longitude,
			Latitude:   b.site.Latitude,
			Elevation:  b.site.Elevation,
			HeadingDeg: b.site.HeadingDeg,
		}
	}
	return export
}

func sanitizeName(name string) string {
	if name == "" {
		return "fixes"
	}
	r := strings.NewReplacer(" ", "_", ":", "_", "/", "_", `\`, "_")
	return r.Replace(name)
}

func writeExport(path string, data FixExport, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer func() {
			if cerr := gzWriter.Close(); err == nil {
				err = cerr
			}
		}()
		w = gzWriter
	}

	return json.NewEncoder(w).Encode(data)
}
