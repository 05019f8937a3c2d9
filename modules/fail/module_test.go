package fail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/bert/internal/config"
	"github.com/vk/bert/internal/inmemorybackend"
	"github.com/vk/bert/internal/job"
	"github.com/vk/bert/internal/testutil"
)

func TestOnRunFail(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "custom message", body: "unsupported arch ${arch}", want: "unsupported arch mips"},
		{name: "default message", body: "{}", want: "build failed by fail task"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			j := testutil.NewJob(t, inmemorybackend.New(nil), t.TempDir(), "base")
			j.SetVar("arch", "mips")
			def := testutil.Definition(t, &Module{}, "fail")

			err := testutil.RunTask(context.Background(), j, def, &config.Task{Body: testutil.Body(t, tc.body)})

			var failed *job.TaskFailedError
			require.True(t, errors.As(err, &failed))
			assert.Equal(t, tc.want, failed.Msg)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}
