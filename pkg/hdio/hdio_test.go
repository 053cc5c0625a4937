package hdio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeErrorMessage(t *testing.T) {
	err := &SizeError{LBA: 10, Count: 5, Limit: 12}
	assert.Equal(t, "hdio: sector range [10,15) exceeds capacity 12", err.Error())
}

func TestSizeErrorZeroValues(t *testing.T) {
	err := &SizeError{}
	assert.Equal(t, "hdio: sector range [0,0) exceeds capacity 0", err.Error())
}
