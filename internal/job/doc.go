// Package job implements the build job: one execution session of a stage
// against one source image. A job owns the current working image, drives
// the task protocol (Create, then Commit or Cancel) against the backend and
// answers cache probes through task fingerprints.
//
// A task run looks like this:
//
//	err := j.RunTask(ctx, task, func(ctx context.Context) error {
//		c, err := j.Create(ctx, jobKey, job.CreateOptions{Command: cmd})
//		if err != nil || c.CacheHit != nil {
//			return err
//		}
//		_, err = j.Commit(ctx, job.CommitOptions{})
//		return err
//	})
//
// A cache hit is not an error: RunTask adopts the existing image as if the
// task had just committed it.
package job
