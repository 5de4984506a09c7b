package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWilsonWidthShrinksWithN(t *testing.T) {
	w10 := WilsonWidth(0, 10)
	w100 := WilsonWidth(0, 100)
	w1000 := WilsonWidth(0, 1000)
	assert.Greater(t, w10, w100, "B4: width shrinks as N grows")
	assert.Greater(t, w100, w1000)
}

func TestWilsonWidthAllSuccessesIsFinite(t *testing.T) {
	w := WilsonWidth(50, 50)
	assert.False(t, w != w, "width must not be NaN") // NaN check
	assert.Greater(t, w, 0.0)
	assert.Less(t, w, 1.0)
}

func TestWilsonWidthZeroSamples(t *testing.T) {
	w := WilsonWidth(0, 0)
	assert.Equal(t, 2.0, w)
}
