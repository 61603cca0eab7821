package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatMarkdown, ParseFormat("markdown"))
	assert.Equal(t, FormatMarkdown, ParseFormat("md"))
	assert.Equal(t, FormatTOON, ParseFormat("toon"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("anything-else"))
}

func TestTableRenderText(t *testing.T) {
	table := NewTable(
		"Results",
		[]string{"File", "Removed"},
		[][]string{{"a.cpp", "3"}, {"b.cpp", "0"}},
		nil,
		nil,
	)

	var buf bytes.Buffer
	require.NoError(t, table.RenderText(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "Results")
	assert.Contains(t, out, "a.cpp")
	assert.Contains(t, out, "b.cpp")
}

func TestTableRenderMarkdown(t *testing.T) {
	table := NewTable(
		"Results",
		[]string{"File", "Removed"},
		[][]string{{"a.cpp", "3"}},
		[]string{"Total", "3"},
		nil,
	)

	var buf bytes.Buffer
	require.NoError(t, table.RenderMarkdown(&buf))
	out := buf.String()
	assert.Contains(t, out, "## Results")
	assert.Contains(t, out, "| File | Removed |")
	assert.Contains(t, out, "| --- | --- |")
	assert.Contains(t, out, "| a.cpp | 3 |")
	assert.Contains(t, out, "| Total | 3 |")
}

func TestTableRenderDataPrefersWrappedData(t *testing.T) {
	type payload struct {
		N int `json:"n"`
	}
	table := NewTable("", []string{"A"}, [][]string{{"1"}}, nil, payload{N: 7})
	assert.Equal(t, payload{N: 7}, table.RenderData())
}

func TestTableRenderDataFallsBackToRows(t *testing.T) {
	table := NewTable("", []string{"File", "Removed"}, [][]string{{"a.cpp", "3"}}, nil, nil)

	data, ok := table.RenderData().([]map[string]string)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "a.cpp", data[0]["File"])
	assert.Equal(t, "3", data[0]["Removed"])
}

func TestSectionRenderText(t *testing.T) {
	s := &Section{
		Title:   "Roots",
		Content: "main",
		Sections: []Section{
			{Title: "Cycles", Content: "even <-> odd"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, s.RenderText(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "Roots\n=====")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "Cycles\n------")
	assert.Contains(t, out, "even <-> odd")
}

func TestSectionRenderMarkdown(t *testing.T) {
	s := &Section{
		Title:   "Roots",
		Content: "main",
		Sections: []Section{
			{Title: "Cycles", Content: "even <-> odd"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, s.RenderMarkdown(&buf))
	out := buf.String()
	assert.Contains(t, out, "## Roots")
	assert.Contains(t, out, "### Cycles")
}

func TestFormatterJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	f, err := NewFormatter(FormatJSON, path, true)
	require.NoError(t, err)
	assert.False(t, f.Colored())

	require.NoError(t, f.Output(map[string]int{"removed": 3}))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded["removed"])
}

func TestFormatterMarkdownWrapsRawData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	f, err := NewFormatter(FormatMarkdown, path, false)
	require.NoError(t, err)

	require.NoError(t, f.Output(map[string]int{"n": 1}))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, "```json"))
	assert.Contains(t, out, "\"n\": 1")
}

func TestFormatterTOONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toon")
	f, err := NewFormatter(FormatTOON, path, false)
	require.NoError(t, err)

	require.NoError(t, f.Output(map[string]int{"removed": 3}))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "removed")
}
