package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigValidates(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
}

func TestMutuallyExclusiveOutputsRejected(t *testing.T) {
	c := Default()
	c.Stdout = true
	c.AlsaDirect = true
	c.Target = "hw:0,0"
	assert.Error(t, c.Validate())
}

func TestAlsaDirectRequiresTarget(t *testing.T) {
	c := Default()
	c.AlsaDirect = true
	assert.Error(t, c.Validate())
}

func TestChunkLargerThanHalfRingRejected(t *testing.T) {
	c := Default()
	c.BufferSizeFrames = 100
	c.FFmpegChunkFrames = 80 // 80*24 = 1920 bytes > (100*24)/2 = 1200
	assert.Error(t, c.Validate())
}

func TestChunkWithinHalfRingAccepted(t *testing.T) {
	c := Default()
	c.BufferSizeFrames = 4800
	c.FFmpegChunkFrames = 128
	assert.NoError(t, c.Validate())
}

func TestOutputBufferFramesDefaultsToInput(t *testing.T) {
	c := Default()
	c.BufferSizeFrames = 2000
	assert.Equal(t, 2000, c.OutputBufferFrames())

	c.OutputBufferSizeFrames = 500
	assert.Equal(t, 500, c.OutputBufferFrames())
}
