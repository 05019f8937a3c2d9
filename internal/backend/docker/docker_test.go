package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvList(t *testing.T) {
	t.Parallel()
	assert.Nil(t, envList(nil))
	assert.Equal(t, []string{"A=1", "B=two"}, envList(map[string]string{"B": "two", "A": "1"}))
}
