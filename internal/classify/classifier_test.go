package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStageMarkerThenMissing(t *testing.T) {
	c := New()

	sig := c.Classify("Building required lib [libxml2]")
	assert.Equal(t, StageMarker, sig.Kind)
	assert.Equal(t, "libxml2", sig.Library)

	sig = c.Classify("php-src source is not downloaded or not locked, please download it first")
	assert.Equal(t, DependencyMissing, sig.Kind)
	assert.Equal(t, "libxml2", sig.Library)
}

func TestClassifyNamedMissingSource(t *testing.T) {
	c := New()

	sig := c.Classify("Source [curl] is not downloaded or not locked")
	assert.Equal(t, DependencyMissing, sig.Kind)
	assert.Equal(t, "curl", sig.Library)
}

func TestClassifyMissingDownload(t *testing.T) {
	c := New()

	sig := c.Classify("Download for source [openssl] is missing")
	assert.Equal(t, DependencyMissing, sig.Kind)
	assert.Equal(t, "openssl", sig.Library)
}

func TestClassifyUnrelatedOutput(t *testing.T) {
	c := New()

	for _, line := range []string{
		"",
		"Compiling ext/mbstring",
		"checking for C compiler... cc",
		"[32mBuild complete[0m",
	} {
		sig := c.Classify(line)
		assert.Equal(t, None, sig.Kind, "line %q", line)
	}
}

func TestClassifyStageMarkerUpdates(t *testing.T) {
	c := New()

	c.Classify("Building required lib [zlib]")
	c.Classify("Building required lib [openssl]")
	sig := c.Classify("source not downloaded or not locked")
	assert.Equal(t, DependencyMissing, sig.Kind)
	assert.Equal(t, "openssl", sig.Library)

	c.Reset()
	assert.Empty(t, c.LastStage())
}
