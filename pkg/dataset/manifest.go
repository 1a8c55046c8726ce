package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dataset splits. Each has a manifest called ice_<split>.txt
const (
	SplitTrain     = "train"
	SplitVal       = "val"
	SplitTest      = "test"
	SplitTrainOrig = "train_orig"
	SplitValOrig   = "val_orig"
)

var Splits = []string{SplitTrain, SplitVal, SplitTest, SplitTrainOrig, SplitValOrig}

func IsValidSplit(split string) bool {
	for _, s := range Splits {
		if s == split {
			return true
		}
	}
	return false
}

// ManifestFile returns the name of the manifest for a split
func ManifestFile(split string) string {
	return "ice_" + split + ".txt"
}

// LoadManifest reads the list of sample identifiers for a split
func LoadManifest(txtDir, split string) ([]string, error) {
	if !IsValidSplit(split) {
		return nil, &ConfigurationError{Field: "split", Reason: fmt.Sprintf("unknown split %q (valid: %v)", split, strings.Join(Splits, ", "))}
	}
	filename := filepath.Join(txtDir, ManifestFile(split))
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to open manifest: %w", err)
	}
	defer f.Close()
	names, err := ReadManifest(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to read manifest %v: %w", filename, err)
	}
	return names, nil
}

// ReadManifest parses one identifier per line. Whitespace is trimmed and blank lines are skipped.
func ReadManifest(r io.Reader) ([]string, error) {
	names := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, scanner.Err()
}

// SampleRef locates the files of one sample on disk
type SampleRef struct {
	Name      string `json:"name"`
	ImagePath string `json:"imagePath"`
	MaskPath  string `json:"maskPath"`
	PropPath  string `json:"propPath,omitempty"` // Empty if proposals are not used
}

// ProposalName returns the proposal file name for an identifier, which is the identifier's stem plus ".npy"
func ProposalName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".npy"
}

// MakeRefs builds the sample references for a list of identifiers.
// If propDir is empty, no proposal paths are filled in.
func MakeRefs(names []string, imageDir, maskDir, propDir string) []SampleRef {
	refs := make([]SampleRef, len(names))
	for i, name := range names {
		refs[i] = SampleRef{
			Name:      name,
			ImagePath: filepath.Join(imageDir, name),
			MaskPath:  filepath.Join(maskDir, name),
		}
		if propDir != "" {
			refs[i].PropPath = filepath.Join(propDir, ProposalName(name))
		}
	}
	return refs
}
