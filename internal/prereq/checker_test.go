package prereq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubChecker(found map[string]bool, versions map[string]string) *Checker {
	c := NewChecker()
	c.lookPath = func(file string) (string, error) {
		if found[file] {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
	c.commandVersion = func(name string, _ ...string) (string, error) {
		if v, ok := versions[name]; ok {
			return v, nil
		}
		return "", errors.New("no version")
	}
	return c
}

func TestCheckAllPresent(t *testing.T) {
	c := stubChecker(
		map[string]bool{"git": true, "php": true, "composer": true},
		map[string]string{
			"git":      "git version 2.44.0",
			"php":      "8.3.21",
			"composer": "Composer version 2.7.1 2024-02-09 15:26:28",
		},
	)

	results, err := c.Check()
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, c.AllPassed())
	assert.Empty(t, c.FailedChecks())

	byName := map[string]PrereqResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, "2.44.0", byName["git"].Version)
	assert.Equal(t, "8.3.21", byName["php"].Version)
	assert.Equal(t, "2.7.1", byName["composer"].Version)
	assert.True(t, byName["php"].Required)
}

func TestCheckMissingRequiredTool(t *testing.T) {
	c := stubChecker(map[string]bool{"git": true, "composer": true}, nil)

	results, err := c.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "php")
	assert.False(t, c.AllPassed())

	failed := c.FailedChecks()
	require.Len(t, failed, 1)
	assert.Equal(t, "php", failed[0].Name)
	assert.NotEmpty(t, failed[0].Suggestion)
	assert.Len(t, results, 3)
}

func TestCheckUPXOptional(t *testing.T) {
	c := stubChecker(map[string]bool{"git": true, "php": true, "composer": true}, nil)
	c.WantUPX()

	results, err := c.Check()
	require.NoError(t, err, "a missing optional tool must not fail the check")
	require.Len(t, results, 4)

	upx := results[3]
	assert.Equal(t, "upx", upx.Name)
	assert.False(t, upx.Required)
	assert.False(t, upx.Found)
	assert.True(t, c.AllPassed())
}

func TestCheckVersionUnavailable(t *testing.T) {
	c := stubChecker(map[string]bool{"git": true, "php": true, "composer": true}, nil)

	results, err := c.Check()
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Found)
		assert.Empty(t, r.Version)
		assert.Contains(t, r.Message, "is available")
	}
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "2.44.0", parseVersion("git", "git version 2.44.0"))
	assert.Equal(t, "8.3.21", parseVersion("php", "8.3.21"))
	assert.Equal(t, "2.7.1", parseVersion("composer", "Composer version 2.7.1 2024-02-09"))
	assert.Equal(t, "4.2.2", parseVersion("upx", "upx 4.2.2"))
	assert.Equal(t, "", parseVersion("git", "garbage"))
}
