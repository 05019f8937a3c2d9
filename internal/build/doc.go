// Package build drives a whole build: every config chain runs every stage
// in document order, and every stage runs its tasks in document order
// against one job per source image. Variables saved by tasks flow forward
// from image to image and from stage to stage within a chain.
package build
