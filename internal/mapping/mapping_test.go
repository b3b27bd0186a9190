package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

func TestLoad_MissingFilesYieldZeroTables(t *testing.T) {
	tables, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, tables.CrawlHotfix.SkipPages)
	assert.Empty(t, tables.DatasetID.Global)
	assert.Empty(t, tables.Overrides.Overrides)
}

func TestLoad_MalformedFileIsConfigError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset-id-mapping.json"), []byte("{not json"), 0o644))

	_, err := Load(dir)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfig))
}

func TestLoad_ParsesTables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crawl-hotfix-mapping.json"), []byte(`{
		"skipPages": ["hum0003"],
		"releaseUrlSuffix": {"hum0009-v2-en": "-e2"},
		"controlledAccessRows": [
			{"humId": "hum0012", "cellCount": 3, "firstCell": "山田", "cells": ["山田 太郎", "東京大学", "JGAD000010"]}
		]
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset-id-mapping.json"), []byte(`{
		"global": {"JGAD00001O": "JGAD000010"},
		"noSplit": ["JGAD000001 T2DM"],
		"invalidJgas": ["JGAS999999"],
		"additionalJgadByHum": {"hum0014": {"JGAS000114": ["JGAD000500"]}}
	}`), 0o644))

	tables, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, tables.CrawlHotfix.SkipSet()["hum0003"])
	assert.Equal(t, "-e2", tables.CrawlHotfix.ReleaseURLSuffix["hum0009-v2-en"])
	assert.Equal(t, []string{"山田 太郎", "東京大学", "JGAD000010"},
		tables.CrawlHotfix.RowFix("hum0012", 3, "山田"))
	assert.Nil(t, tables.CrawlHotfix.RowFix("hum0012", 4, "山田"))

	assert.Equal(t, "JGAD000010", tables.DatasetID.Global["JGAD00001O"])
	assert.True(t, tables.DatasetID.NoSplitSet()["JGAD000001 T2DM"])
	assert.True(t, tables.DatasetID.InvalidJGASSet()["JGAS999999"])
	assert.Equal(t, []string{"JGAD000500"}, tables.DatasetID.AdditionalJgadByHum["hum0014"]["JGAS000114"])
}

func TestDatasetOverrides_Find(t *testing.T) {
	d := DatasetOverrides{Overrides: []DatasetOverride{
		{HumID: "hum0014", DatasetID: "hum0014.v3.T2DM-1.v1", InheritFrom: "hum0014.v3"},
	}}
	assert.NotNil(t, d.Find("hum0014", "hum0014.v3.T2DM-1.v1"))
	assert.Nil(t, d.Find("hum0014", "other"))
}
