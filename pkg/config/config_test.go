package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyclopcam/icepipe/pkg/dataset"
	"github.com/cyclopcam/icepipe/pkg/loader"
	"github.com/cyclopcam/icepipe/pkg/normalize"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0666))
	return path
}

func TestDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, 0.35, c.Scale)
	require.Equal(t, 320, c.Crop)
	require.Equal(t, 3, c.NumClasses)
	require.Equal(t, normalize.IceStats(), c.Stats)
}

func TestLoadPartialOverride(t *testing.T) {
	path := writeConfig(t, "ice.json", `{"dataRoot": "/data/ice", "crop": 256, "skipErrors": true, "propDir": "/elsewhere/props"}`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 256, c.Crop)
	require.Equal(t, 0.35, c.Scale)

	opts := c.DatasetOptions(dataset.SplitVal, true)
	require.Equal(t, filepath.Join("/data/ice", "imgs"), opts.ImageDir)
	require.Equal(t, "/elsewhere/props", opts.PropDir)
	require.Equal(t, dataset.SplitVal, opts.Split)
	require.True(t, opts.WithProposal)
	require.Equal(t, 0.5, opts.ProposalNativeScale)

	lo := c.LoaderOptions()
	require.Equal(t, loader.OnErrorSkip, lo.OnError)
	require.Equal(t, 4, lo.BatchSize)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeConfig(t, "ice.yaml", `{}`))
	require.ErrorContains(t, err, ".json")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Load(writeConfig(t, "big.json", `{"dataRoot": "`+strings.Repeat("x", maxFileSize)+`"}`))
	require.ErrorContains(t, err, "too large")

	_, err = Load(writeConfig(t, "bad.json", `{"scale": 0}`))
	var cfgErr *dataset.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	_, err = Load(writeConfig(t, "upsample.json", `{"scale": 2.5}`))
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "scale", cfgErr.Field)

	_, err = Load(writeConfig(t, "classes.json", `{"numClasses": 3, "headline": 3}`))
	require.ErrorContains(t, err, "headline")
}
