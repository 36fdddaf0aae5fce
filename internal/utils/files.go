package utils

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// VideoExtensions are the container formats picked up when scanning a directory.
var VideoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
	".wmv": true, ".flv": true, ".m4v": true, ".mpeg": true, ".mpg": true,
}

// SheetSuffix is appended to the input stem to form default output names.
const SheetSuffix = "_spritesheet.png"

// FindVideoFiles lists the videos directly inside dir, sorted by path.
func FindVideoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var videos []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if VideoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			videos = append(videos, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(videos)
	return videos, nil
}

// Stem is the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DefaultOutputPath places the sheet next to the input: <dir>/<stem>_spritesheet.png.
func DefaultOutputPath(input string) string {
	return filepath.Join(filepath.Dir(input), Stem(input)+SheetSuffix)
}

// BatchOutputPath resolves the sheet path of one input when several inputs
// share an --output argument. An argument without extension is a directory;
// anything else is a filename prefix joined as <stem>_<output>.
func BatchOutputPath(input, output string) string {
	if filepath.Ext(output) == "" {
		return filepath.Join(output, Stem(input)+SheetSuffix)
	}
	return Stem(input) + "_" + output
}

// OutputPaths maps every input to its sheet path.
func OutputPaths(inputs []string, output string) []string {
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		switch {
		case output == "":
			paths[i] = DefaultOutputPath(in)
		case len(inputs) == 1:
			paths[i] = output
		default:
			paths[i] = BatchOutputPath(in, output)
		}
	}
	return paths
}
