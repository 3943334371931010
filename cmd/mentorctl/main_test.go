package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	corpusDir, output = "", "json"

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.Bytes()
}

func TestClassifyCommand(t *testing.T) {
	var res struct {
		Intent   string `json:"intent"`
		Entities struct {
			Symbols []string `json:"symbols"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(execute(t, "classify", "삼성전자", "PER", "알려줘"), &res))
	assert.Equal(t, "STOCK_METRICS", res.Intent)
	assert.Equal(t, []string{"삼성전자"}, res.Entities.Symbols)
}

func TestPlanCommand(t *testing.T) {
	var plan struct {
		Persona string `json:"persona"`
		Corpora []struct {
			Partition string `json:"partition"`
		} `json:"corpora"`
	}
	require.NoError(t, json.Unmarshal(execute(t, "plan", "--persona", "lynch", "린치의 인플레이션 관점은?"), &plan))
	assert.Equal(t, "lynch", plan.Persona)
	require.NotEmpty(t, plan.Corpora)
	assert.Equal(t, "philosophy/lynch", plan.Corpora[0].Partition)
}

func TestCorpusStatsYAML(t *testing.T) {
	var counts map[string]int
	require.NoError(t, yaml.Unmarshal(execute(t, "corpus", "stats", "-o", "yaml"), &counts))
	assert.Positive(t, counts["philosophy/buffett"])
}

func TestCorpusSearch(t *testing.T) {
	var snippets []struct {
		SourceID string `json:"source_id"`
	}
	require.NoError(t, json.Unmarshal(execute(t, "corpus", "search", "--partition", "philosophy/buffett", "-k", "2", "인플레이션"), &snippets))
	require.NotEmpty(t, snippets)
	assert.LessOrEqual(t, len(snippets), 2)
}

func TestUnknownOutputFormat(t *testing.T) {
	output = "xml"
	defer func() { output = "json" }()
	assert.Error(t, render(&bytes.Buffer{}, 1))
}
