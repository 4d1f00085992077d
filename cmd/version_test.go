package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ads-crawler")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	root.AddCommand(newCrawlCmd(), newVersionCmd())

	names := make([]string, 0, 2)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "crawl")
	assert.Contains(t, names, "version")
}
