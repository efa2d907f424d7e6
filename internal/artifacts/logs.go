package artifacts

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/ternarybob/arbor"
)

// LogSource copies server-side artifacts out of the application runtime
type LogSource interface {
	ContainerID(ctx context.Context) (string, error)
	CopyDir(ctx context.Context, containerID, srcDir, dest string) error
}

// LogFile is one collected file
type LogFile struct {
	Name string `yaml:"name"`
	Size int64  `yaml:"size"`
}

// LogCollection is the outcome of a log collection attempt
type LogCollection struct {
	Dir      string    `yaml:"dir"`
	Files    []LogFile `yaml:"files"`
	Warnings []Warning `yaml:"-"`
}

// CollectLogs copies the contents of volume from the application container
// into dest and lists what arrived. A missing container or failed copy
// yields a warning; whatever is already in dest is still listed.
func CollectLogs(ctx context.Context, source LogSource, volume, dest string, logger arbor.ILogger) LogCollection {
	collection := LogCollection{Dir: dest}

	if err := os.MkdirAll(dest, 0755); err != nil {
		collection.Warnings = append(collection.Warnings, Warning{Op: "collect-logs", Target: dest, Err: fmt.Errorf("failed to create log directory: %w", err)})
		return collection
	}

	id, err := source.ContainerID(ctx)
	if err != nil {
		collection.Warnings = append(collection.Warnings, Warning{Op: "collect-logs", Target: volume, Err: err})
		logger.Warn().Err(err).Msg("Could not find app container")
		return collection
	}

	if err := source.CopyDir(ctx, id, volume, dest); err != nil {
		collection.Warnings = append(collection.Warnings, Warning{Op: "collect-logs", Target: volume, Err: err})
		logger.Warn().Err(err).Msg("Could not collect logs")
	}

	files, err := listFiles(dest)
	if err != nil {
		collection.Warnings = append(collection.Warnings, Warning{Op: "collect-logs", Target: dest, Err: err})
		return collection
	}
	collection.Files = files

	logger.Info().Str("dir", dest).Int("files", len(files)).Msgf("✓ Collected %d log files", len(files))
	for _, f := range files {
		logger.Debug().Str("file", f.Name).Int64("bytes", f.Size).Msg("Log file")
	}

	return collection
}

// listFiles returns the regular files directly inside dir, sorted by name
func listFiles(dir string) ([]LogFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := make([]LogFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFile{Name: entry.Name(), Size: info.Size()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
